package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
)

// Notifier emits fire-and-forget order events: a websocket push to any
// connected party, a redis publish for the external notification surface, and
// a system message in the parties' conversation. The core never waits on
// delivery and never fails because of it.
type Notifier struct {
	Hub *Hub
	RDB *redis.Client
	DB  *gorm.DB
}

func NewNotifier(hub *Hub, rdb *redis.Client, db *gorm.DB) *Notifier {
	return &Notifier{Hub: hub, RDB: rdb, DB: db}
}

type orderEvent struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id"`
	OrderCode  string             `json:"order_code"`
	Previous   models.OrderStatus `json:"previous_status"`
	Status     models.OrderStatus `json:"status"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func (n *Notifier) OrderStatusChanged(o *models.Order, previous models.OrderStatus) {
	evt := orderEvent{
		Type:       "order_status_update",
		OrderID:    o.ID.String(),
		OrderCode:  o.OrderCode,
		Previous:   previous,
		Status:     o.Status,
		OccurredAt: time.Now(),
	}

	n.Hub.SendToParties(o.ClientID, o.FreelancerID, evt)
	n.systemMessage(o, previous)

	if n.RDB == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("notify: marshal event: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, uid := range []string{o.ClientID.String(), o.FreelancerID.String()} {
		if err := n.RDB.Publish(ctx, "notify:"+uid, payload).Err(); err != nil {
			log.Printf("notify: publish to %s: %v", uid, err)
		}
	}
}

// systemMessage drops a status line into the parties' conversation so the
// dispute evidence trail includes what the system did and when.
func (n *Notifier) systemMessage(o *models.Order, previous models.OrderStatus) {
	if n.DB == nil {
		return
	}

	var conv models.Conversation
	err := n.DB.Where("client_id = ? AND freelancer_id = ?", o.ClientID, o.FreelancerID).
		First(&conv).Error
	if err == gorm.ErrRecordNotFound {
		conv = models.Conversation{ClientID: o.ClientID, FreelancerID: o.FreelancerID}
		err = n.DB.Create(&conv).Error
	}
	if err != nil {
		log.Printf("notify: conversation for order %s: %v", o.OrderCode, err)
		return
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       o.ClientID,
		Type:           "system",
		Text:           fmt.Sprintf("Order #%s moved from %s to %s", o.OrderCode, previous, o.Status),
	}
	if err := n.DB.Create(&msg).Error; err != nil {
		log.Printf("notify: system message for order %s: %v", o.OrderCode, err)
		return
	}
	n.DB.Model(&conv).Update("last_message_at", time.Now())
}
