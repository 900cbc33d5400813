package models

// ServiceStatus is a point-in-time aggregate computed on demand from the
// job store. It is derived, never persisted.
type ServiceStatus struct {
	ServiceRunning bool    `json:"serviceRunning"`
	CurrentJob     *string `json:"currentJob"`
	TotalJobs      int     `json:"totalJobs"`
	QueuedJobs     int     `json:"queuedJobs"`
	RunningJobs    int     `json:"runningJobs"`
	CompletedJobs  int     `json:"completedJobs"`
	FailedJobs     int     `json:"failedJobs"`
	Uptime         string  `json:"uptime"`
}
