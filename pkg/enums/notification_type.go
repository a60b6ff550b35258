package enums

// NotificationType labels the event a notification row describes.
type NotificationType string

const (
	NotificationTypeOrderPlaced       NotificationType = "order_placed"
	NotificationTypeOrderConfirmed    NotificationType = "order_confirmed"
	NotificationTypeOrderRejected     NotificationType = "order_rejected"
	NotificationTypePaymentConfirmed  NotificationType = "payment_confirmed"
	NotificationTypeOrderClaimed      NotificationType = "order_claimed"
	NotificationTypeOrderDelivered    NotificationType = "order_delivered"
	NotificationTypeWithdrawalDecided NotificationType = "withdrawal_decided"
)

func (n NotificationType) String() string {
	return string(n)
}
