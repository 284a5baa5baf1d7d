package models

import "context"

type NotificationService interface {
	SendNotification(ctx context.Context, notification *Notification)
}

type Notification struct {
	Account string `json:"account"`
	ChainID int64  `json:"chain_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (n *Notification) String() string {
	return n.Title + "\n" + n.Message
}

// NotificationFromAction turns an activity action into a notification.
func NotificationFromAction(action *ActivityAction) *Notification {
	return &Notification{
		Account: action.Account,
		ChainID: action.ChainID,
		Title:   action.Title,
		Message: action.Description,
	}
}
