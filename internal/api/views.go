package api

import (
	"time"

	"github.io/infrasutra/inboxsweep/internal/store"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

type importView struct {
	ID                string `json:"id"`
	Source            string `json:"source"`
	Path              string `json:"path"`
	CreatedAt         string `json:"createdAt"`
	SubscriptionCount int    `json:"subscriptionCount"`
	RawText           string `json:"rawText,omitempty"`
}

type importResponse struct {
	Import        importView                  `json:"import"`
	Path          string                      `json:"path"`
	AIError       string                      `json:"aiError,omitempty"`
	Subscriptions []subscription.Subscription `json:"subscriptions"`
}

type subscriptionSummary struct {
	ID              string              `json:"id"`
	Sender          string              `json:"sender"`
	Email           string              `json:"email"`
	Count           int                 `json:"count"`
	Subject         string              `json:"subject"`
	UnsubscribeLink string              `json:"unsubscribeLink,omitempty"`
	Status          subscription.Status `json:"status"`
}

type subscriptionListResponse struct {
	ImportID      string                `json:"importId"`
	Subscriptions []subscriptionSummary `json:"subscriptions"`
	Page          int32                 `json:"page"`
	Limit         int32                 `json:"limit"`
	Total         int32                 `json:"total"`
	TotalPages    int32                 `json:"totalPages"`
	HasNext       bool                  `json:"hasNext"`
}

type summaryView struct {
	ImportID      string `json:"importId"`
	Subscriptions int    `json:"subscriptions"`
	Active        int    `json:"active"`
	Pending       int    `json:"pending"`
	Unsubscribed  int    `json:"unsubscribed"`
	EmailsCleaned int    `json:"emails"`
}

type inboxMessageView struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Section   string `json:"section"`
	RawSize   int64  `json:"rawSize"`
	CreatedAt string `json:"createdAt"`
}

func toImportView(imp store.Import, withText bool) importView {
	view := importView{
		ID:                imp.ID,
		Source:            imp.Source,
		Path:              imp.Path,
		CreatedAt:         imp.CreatedAt.UTC().Format(time.RFC3339),
		SubscriptionCount: imp.SubscriptionCount,
	}
	if withText {
		view.RawText = imp.RawText
	}
	return view
}

func toSubscriptionSummary(sub subscription.Subscription) subscriptionSummary {
	return subscriptionSummary{
		ID:              sub.ID,
		Sender:          sub.Sender,
		Email:           sub.Address,
		Count:           sub.Count,
		Subject:         sub.Subject,
		UnsubscribeLink: sub.UnsubscribeLink,
		Status:          sub.Status,
	}
}

func toInboxMessageView(message store.InboxMessage) inboxMessageView {
	return inboxMessageView{
		ID:        message.ID,
		From:      message.From,
		Subject:   message.Subject,
		Section:   message.Section,
		RawSize:   message.RawSize,
		CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
	}
}
