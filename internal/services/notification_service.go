package services

import (
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/gorm"

	"Holdsafe/internal/models"
)

// NotificationService records in-app notifications and sends the matching
// email. Notification failures never fail the ledger operation that
// triggered them; they are logged and dropped.
type NotificationService struct {
	db    *gorm.DB
	email *EmailService
}

func NewNotificationService(db *gorm.DB, email *EmailService) *NotificationService {
	return &NotificationService{db: db, email: email}
}

// CreateNotification creates a new notification row.
func (s *NotificationService) CreateNotification(userID uint, notifType models.NotificationType, title, message string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		dataJSON = string(jsonBytes)
	}

	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    dataJSON,
		IsRead:  false,
	}

	if err := s.db.Create(&notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) notify(userID uint, notifType models.NotificationType, title, message string, data map[string]interface{}) {
	if err := s.CreateNotification(userID, notifType, title, message, data); err != nil {
		log.Printf("WARN: failed to record notification for user %d: %v", userID, err)
	}
	if s.email == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		log.Printf("WARN: no email sent, user %d not found: %v", userID, err)
		return
	}
	if err := s.email.SendEscrowEmail(user.Email, title, title, message); err != nil {
		log.Printf("WARN: failed to email user %d: %v", userID, err)
	}
}

// NotifyFundsHeld tells both sides that the buyer's payment is held in escrow.
func (s *NotificationService) NotifyFundsHeld(order *models.Order, payeeUserID uint, amount int64) {
	msg := fmt.Sprintf("Payment of %d (%s minor units) for order %d is now held in escrow.", amount, order.Currency, order.ID)
	s.notify(order.BuyerID, models.NotificationFundsHeld, "Payment Held in Escrow", msg, map[string]interface{}{
		"order_id": order.ID, "amount": amount,
	})
	s.notify(payeeUserID, models.NotificationFundsHeld, "Payment Held in Escrow", msg, map[string]interface{}{
		"order_id": order.ID, "amount": amount,
	})
}

// NotifyFundsReleased tells the payee a release went out.
func (s *NotificationService) NotifyFundsReleased(order *models.Order, payeeUserID uint, payeeAmount, fee int64, status models.OrderStatus) {
	msg := fmt.Sprintf("%d (%s minor units) has been sent to your payout account for order %d (platform fee %d). Order status: %s.",
		payeeAmount, order.Currency, order.ID, fee, status)
	s.notify(payeeUserID, models.NotificationFundsReleased, "Escrow Funds Released", msg, map[string]interface{}{
		"order_id": order.ID, "amount": payeeAmount, "fee": fee,
	})
}

// NotifyRefundIssued tells the buyer a refund went out.
func (s *NotificationService) NotifyRefundIssued(order *models.Order, amount int64, status models.OrderStatus) {
	msg := fmt.Sprintf("A refund of %d (%s minor units) has been issued for order %d. Order status: %s.",
		amount, order.Currency, order.ID, status)
	s.notify(order.BuyerID, models.NotificationRefundIssued, "Refund Issued", msg, map[string]interface{}{
		"order_id": order.ID, "amount": amount,
	})
}

// NotifyReconciliationOpened alerts every admin that an order needs manual
// reconciliation against the gateway.
func (s *NotificationService) NotifyReconciliationOpened(orderID uint, detail string) {
	var admins []models.User
	if err := s.db.Where("role = ?", "admin").Find(&admins).Error; err != nil {
		log.Printf("WARN: could not load admins for reconciliation alert: %v", err)
		return
	}

	msg := fmt.Sprintf("Order %d has an open reconciliation record: %s", orderID, detail)
	for _, admin := range admins {
		s.notify(admin.ID, models.NotificationReconciliationOpened, "Reconciliation Required", msg, map[string]interface{}{
			"order_id": orderID,
		})
	}
}
