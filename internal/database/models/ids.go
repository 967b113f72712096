package models

// Remote ids sort by length first and then lexically, so comparisons
// against a cursor id have to look at both. Each expression takes the id three times.
const (
	notificationIDNewer = "(LENGTH(notification_id) > LENGTH(?) OR " +
		"(LENGTH(notification_id) = LENGTH(?) AND notification_id > ?))"
	notificationIDOlder = "(LENGTH(notification_id) < LENGTH(?) OR " +
		"(LENGTH(notification_id) = LENGTH(?) AND notification_id < ?))"
)
