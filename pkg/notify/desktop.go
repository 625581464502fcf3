package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"feedharvest/pkg/models"
)

// Sender shows a desktop notification
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

// LinuxSender uses notify-send
type LinuxSender struct{}

func (LinuxSender) Send(ctx context.Context, title, message string) error {
	return exec.CommandContext(ctx, "notify-send", "--urgency=critical", title, message).Run()
}

// MacOSSender uses osascript
type MacOSSender struct{}

func (MacOSSender) Send(ctx context.Context, title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.CommandContext(ctx, "osascript", "-e", script).Run()
}

// WindowsSender raises a toast through PowerShell
type WindowsSender struct{}

func (WindowsSender) Send(ctx context.Context, title, message string) error {
	quote := func(s string) string { return strings.ReplaceAll(s, "'", "''") }
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName('text')
		$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('feedharvest').Show($toast)
	`, quote(title), quote(message))
	return exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// DesktopNotifier raises a desktop notification on the machine running the
// daemon. It is a no-op on platforms without a known sender.
type DesktopNotifier struct {
	sender Sender
}

// NewDesktopNotifier picks a sender for the current OS
func NewDesktopNotifier() *DesktopNotifier {
	var sender Sender
	switch runtime.GOOS {
	case "linux":
		sender = LinuxSender{}
	case "darwin":
		sender = MacOSSender{}
	case "windows":
		sender = WindowsSender{}
	}
	return &DesktopNotifier{sender: sender}
}

// NewDesktopNotifierWithSender creates a notifier around sender
func NewDesktopNotifierWithSender(sender Sender) *DesktopNotifier {
	return &DesktopNotifier{sender: sender}
}

// OnSessionInvalid implements Notifier
func (n *DesktopNotifier) OnSessionInvalid(ctx context.Context, platform models.Platform) error {
	if n.sender == nil {
		return nil
	}
	title := fmt.Sprintf("feedharvest: %s cookies expired", platformTitle(platform))
	message := fmt.Sprintf("Run `feedharvest cookies set %s` with fresh cookies.", platform.Short())
	if err := n.sender.Send(ctx, title, message); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}
