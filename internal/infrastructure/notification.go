package infrastructure

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/internal/domain"
)

// NotificationService sends desktop notifications for task lifecycle
// events
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	switch n.config.Method {
	case "osascript":
		return n.sendOSAScript(title, message)
	case "notify-send":
		return n.sendNotifySend(title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}
}

// sendOSAScript sends notification using macOS osascript
func (n *NotificationService) sendOSAScript(title, message string) error {
	// Course titles may contain quotes; keep the AppleScript literal intact
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", "osascript"),
			zap.String("command", ShellEscapeCommand("osascript", "-e", script)),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// sendNotifySend sends notification using Linux notify-send
func (n *NotificationService) sendNotifySend(title, message string) error {
	cmd := exec.Command("notify-send", title, message)

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", "notify-send"),
			zap.String("command", ShellEscapeCommand("notify-send", title, message)),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// NotifyTaskQueued sends a notification when a course download is queued
func (n *NotificationService) NotifyTaskQueued(task *domain.DownloadTask) {
	message := fmt.Sprintf("Queued: %s", truncateString(taskLabel(task), 40))
	n.Send("Course Download Queued", message)
}

// NotifyTaskStarted sends a notification when a course download starts
func (n *NotificationService) NotifyTaskStarted(task *domain.DownloadTask) {
	message := fmt.Sprintf("Downloading: %s", truncateString(taskLabel(task), 40))
	n.Send("Course Download Started", message)
}

// NotifyTaskCompleted sends a notification when a course download ends.
// A completion with failed items is reported as partial.
func (n *NotificationService) NotifyTaskCompleted(task *domain.DownloadTask) {
	label := truncateString(taskLabel(task), 40)
	if task.FailedItems > 0 {
		message := fmt.Sprintf("%s: %d of %d items failed", label, task.FailedItems, task.TotalItems)
		n.Send("Course Download Finished With Errors", message)
		return
	}
	message := fmt.Sprintf("%s: %d items", label, task.CompletedItems)
	n.Send("Course Download Completed", message)
}

// NotifyTaskFailed sends a notification when a course download fails
func (n *NotificationService) NotifyTaskFailed(task *domain.DownloadTask) {
	message := fmt.Sprintf("Failed: %s", truncateString(taskLabel(task), 40))
	n.Send("Course Download Failed", message)
}

func taskLabel(task *domain.DownloadTask) string {
	if task.CourseTitle != "" {
		return task.CourseTitle
	}
	return fmt.Sprintf("course %d", task.CourseID)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
