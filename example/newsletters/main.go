// Command newsletters mails the sample newsletters to a running inboxsweep
// SMTP intake so the inbox endpoints have something to process.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"

	"github.io/infrasutra/inboxsweep/internal/sample"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2025", "SMTP intake address")
	to := flag.String("to", "me@example.com", "recipient address")
	rounds := flag.Int("rounds", 3, "times each newsletter is sent")
	flag.Parse()

	sent := 0
	for round := 1; round <= *rounds; round++ {
		for _, n := range sample.Newsletters {
			raw, err := buildMessage(n, *to, round)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := smtp.SendMail(*addr, nil, n.Address, []string{*to}, bytes.NewReader(raw)); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			sent++
		}
	}

	fmt.Printf("sent %d messages to %s\n", sent, *addr)
}

func buildMessage(n sample.Newsletter, to string, round int) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: n.Sender, Address: n.Address}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(fmt.Sprintf("%s (#%d)", n.Subject, round))
	h.Set("List-Unsubscribe", "<"+n.UnsubscribeURL+">")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, n.Body+"\r\n"); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}
