package registry

import (
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// StartSweeper schedules r.Sweep() on the given cron spec (default
// "@every 6h" per spec §4.5) and returns a stop function.
func (r *Registry) StartSweeper(spec string, logger logrus.FieldLogger) (func(), error) {
	if spec == "" {
		spec = "@every 6h"
	}

	job := cron.New()
	if err := job.AddFunc(spec, func() {
		n := r.Sweep()
		if n > 0 {
			logger.WithField("removed", n).Info("registry sweep removed expired sessions")
		}
	}); err != nil {
		return nil, err
	}
	job.Start()

	return job.Stop, nil
}
