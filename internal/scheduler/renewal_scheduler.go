package scheduler

import (
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/robfig/cron/v3"
)

// ReminderSender is the part of the renewal service the scheduler drives
type ReminderSender interface {
	SendReminders() (int, error)
}

// RenewalScheduler sends the renewal reminder digest on a cron schedule
type RenewalScheduler struct {
	cron   *cron.Cron
	spec   string
	sender ReminderSender
}

// NewRenewalScheduler builds a scheduler; spec is a standard five-field cron expression.
func NewRenewalScheduler(sender ReminderSender, spec string) *RenewalScheduler {
	return &RenewalScheduler{
		cron:   cron.New(),
		spec:   spec,
		sender: sender,
	}
}

func (s *RenewalScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		logger.Error("Failed to add cron job for renewal reminders", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Renewal scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

func (s *RenewalScheduler) run() {
	logger.Info("Starting scheduled renewal reminders")

	sent, err := s.sender.SendReminders()
	if err != nil {
		logger.Error("Failed to send renewal reminders", err)
		return
	}

	logger.Info("Renewal reminders sent", map[string]interface{}{
		"notifications": sent,
	})
}

// Stop waits for a running job to finish
func (s *RenewalScheduler) Stop() {
	logger.Info("Stopping renewal scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Renewal scheduler stopped")
}
