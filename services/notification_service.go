package services

import (
	"context"
	"fmt"

	"helpnet/models"
	"helpnet/repositories"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// NotificationService sends SMS alerts to the creator's emergency contacts.
// Alerts are strictly best effort: failures are logged and never propagate
// into the emergency lifecycle.
type NotificationService struct {
	userRepo     repositories.UserRepository
	twilioClient *twilio.RestClient
	twilioNumber string
}

func NewNotificationService(userRepo repositories.UserRepository, twilioSID, twilioToken, twilioNumber string) *NotificationService {
	var client *twilio.RestClient
	if twilioSID != "" && twilioToken != "" {
		client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: twilioSID,
			Password: twilioToken,
		})
	}

	return &NotificationService{
		userRepo:     userRepo,
		twilioClient: client,
		twilioNumber: twilioNumber,
	}
}

// NotifyContacts texts every emergency contact of the emergency's creator.
// It returns an error only so the outbox worker can decide to retry; the
// request path never sees it.
func (ns *NotificationService) NotifyContacts(ctx context.Context, userID string, emergency *models.Emergency) error {
	user, err := ns.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.Contacts) == 0 {
		return nil
	}

	body := ns.contactAlertBody(user, emergency)

	var lastErr error
	sent := 0
	for _, contact := range user.Contacts {
		if contact.Phone == "" {
			continue
		}
		if err := ns.sendSMS(contact.Phone, body); err != nil {
			logrus.Warnf("Failed to alert contact %s for user %s: %v", contact.Name, userID, err)
			lastErr = err
			continue
		}
		sent++
	}

	logrus.Infof("Alerted %d/%d contacts for user %s", sent, len(user.Contacts), userID)
	return lastErr
}

func (ns *NotificationService) contactAlertBody(user *models.User, emergency *models.Emergency) string {
	name := user.DisplayName()
	if name == "" {
		name = "Your contact"
	}
	body := fmt.Sprintf("%s triggered an emergency alert (%s, %s priority).", name, emergency.Type, emergency.Priority)
	if emergency.Location.Address != "" {
		body += " Last known location: " + emergency.Location.Address
	} else {
		body += fmt.Sprintf(" Last known location: %.5f, %.5f", emergency.Location.Latitude, emergency.Location.Longitude)
	}
	return body
}

func (ns *NotificationService) sendSMS(to, body string) error {
	if ns.twilioClient == nil {
		logrus.Debugf("SMS provider not configured, skipping message to %s", to)
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(ns.twilioNumber)
	params.SetBody(body)

	_, err := ns.twilioClient.Api.CreateMessage(params)
	return err
}
