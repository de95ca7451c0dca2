package notify

import "context"

// Permission is the platform's answer to a notification permission request.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// DesktopNotification is a system-level notification.
type DesktopNotification struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Icon   string `json:"icon"`
	Tag    string `json:"tag"`
	Silent bool   `json:"silent"`
}

// DefaultIcon is used when a notification has no icon.
const DefaultIcon = "/icon-192x192.png"

// Desktop displays system notifications.
type Desktop interface {
	RequestPermission(ctx context.Context) Permission
	Show(n DesktopNotification)
	Close(id string)
}

// StaticDesktop answers permission requests with a fixed value and forwards
// Show and Close to optional callbacks.
type StaticDesktop struct {
	Permission Permission
	OnShow     func(DesktopNotification)
	OnClose    func(id string)
}

func (d StaticDesktop) RequestPermission(context.Context) Permission {
	if d.Permission == "" {
		return PermissionDefault
	}
	return d.Permission
}

func (d StaticDesktop) Show(n DesktopNotification) {
	if d.OnShow != nil {
		d.OnShow(n)
	}
}

func (d StaticDesktop) Close(id string) {
	if d.OnClose != nil {
		d.OnClose(id)
	}
}
