// Package sample holds the demo newsletters used by the import page and the
// example SMTP sender.
package sample

import "strings"

type Newsletter struct {
	Sender         string
	Address        string
	Subject        string
	Body           string
	UnsubscribeURL string
}

var Newsletters = []Newsletter{
	{
		Sender:         "Tech Insider",
		Address:        "newsletter@techinsider.com",
		Subject:        "Your Weekly Tech Digest 🚀",
		Body:           "Hi there! Here's what's trending this week in tech...",
		UnsubscribeURL: "https://techinsider.com/unsubscribe",
	},
	{
		Sender:         "ShopMart",
		Address:        "deals@shopmart.com",
		Subject:        "Flash Sale! 50% OFF Everything",
		Body:           "Don't miss out on our biggest sale of the year!",
		UnsubscribeURL: "https://shopmart.com/unsubscribe",
	},
	{
		Sender:         "FitnessApp",
		Address:        "updates@fitnessapp.com",
		Subject:        "Your Monthly Fitness Report",
		Body:           "You've made great progress this month! Keep it up...",
		UnsubscribeURL: "https://fitnessapp.com/preferences",
	},
	{
		Sender:         "Daily Brief",
		Address:        "news@dailybrief.com",
		Subject:        "Morning Brief - Top Stories Today",
		Body:           "Good morning! Here are today's headlines...",
		UnsubscribeURL: "https://dailybrief.com/unsub",
	},
}

// Text renders the newsletters as a pasted blob. Only the address appears on
// the From line, as in a quick copy out of a mail client.
func Text() string {
	sections := make([]string, 0, len(Newsletters))
	for _, n := range Newsletters {
		sections = append(sections, strings.Join([]string{
			"From: " + n.Address,
			"Subject: " + n.Subject,
			n.Body,
			"Unsubscribe: " + n.UnsubscribeURL,
		}, "\n"))
	}
	return strings.Join(sections, "\n\n---\n\n")
}
