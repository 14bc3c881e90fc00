// Package imap wraps go-imap v2 with the small session surface the
// synchronization engine needs: dial/login/select, IDLE, NOOP, and
// fetching messages that arrived after a UID baseline.
package imap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailindex/internal/model"
)

// RawMessage is one fetched message body plus its server-assigned UID.
// The bytes are only valid for the duration of one processing pass.
type RawMessage struct {
	UID  uint32
	Raw  []byte
	Date time.Time
}

// MailboxStatus describes the selected mailbox at open time.
type MailboxStatus struct {
	Name        string
	NumMessages uint32
	UIDNext     uint32
}

// Client holds the connection settings for one IMAP account.
type Client struct {
	account model.AccountConfig
}

// NewClient creates a client for the given account configuration.
func NewClient(account model.AccountConfig) *Client {
	return &Client{account: account}
}

// Session is one live IMAP connection. It is owned exclusively by the
// connection supervisor and discarded wholesale on reconnect.
type Session struct {
	cli     *imapclient.Client
	account model.AccountConfig
	nextUID uint32
}

// Dial opens a transport connection to the IMAP server. New-message
// notifications received after the mailbox is opened are reported as
// non-blocking sends on events. The caller owns the returned session
// and must Close it.
func (c *Client) Dial(_ context.Context, events chan<- struct{}) (*Session, error) {
	addr := c.account.Host + ":" + c.account.Port

	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				select {
				case events <- struct{}{}:
				default:
					// A wakeup is already pending; it covers this batch.
				}
			},
		},
	}

	var cli *imapclient.Client
	var err error
	if c.account.TLS {
		cli, err = imapclient.DialTLS(addr, opts)
	} else {
		cli, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	return &Session{cli: cli, account: c.account}, nil
}

// Authenticate logs in with the account credentials.
func (s *Session) Authenticate(_ context.Context) error {
	if err := s.cli.Login(s.account.Username, s.account.Password).Wait(); err != nil {
		return fmt.Errorf("authenticating %s: %w", s.account.Username, err)
	}
	return nil
}

// Open selects the configured mailbox and primes the UID baseline so
// FetchNew only sees messages that arrive from now on.
func (s *Session) Open(_ context.Context) (*MailboxStatus, error) {
	selectData, err := s.cli.Select(s.account.Mailbox, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", s.account.Mailbox, err)
	}

	s.nextUID = uint32(selectData.UIDNext)

	return &MailboxStatus{
		Name:        s.account.Mailbox,
		NumMessages: selectData.NumMessages,
		UIDNext:     uint32(selectData.UIDNext),
	}, nil
}

// IdleStart begins an IDLE command. The returned stop function ends the
// command and waits for the server's completion reply.
func (s *Session) IdleStart() (func() error, error) {
	cmd, err := s.cli.Idle()
	if err != nil {
		return nil, fmt.Errorf("starting IDLE: %w", err)
	}
	stop := func() error {
		if err := cmd.Close(); err != nil {
			return fmt.Errorf("ending IDLE: %w", err)
		}
		return cmd.Wait()
	}
	return stop, nil
}

// Noop issues a NOOP keepalive. An error here means the connection is
// no longer usable.
func (s *Session) Noop() error {
	if err := s.cli.Noop().Wait(); err != nil {
		return fmt.Errorf("NOOP failed: %w", err)
	}
	return nil
}

// Alive reports whether the session still has its mailbox selected.
// A silent hang that dropped the session out of the selected state is
// treated as dead even if no error was surfaced.
func (s *Session) Alive() bool {
	return s.cli.State() == imap.ConnStateSelected
}

// FetchNew retrieves every message whose UID is at or past the
// session's baseline, in ascending UID order, and advances the
// baseline past them. limit caps the batch size; zero means no cap.
func (s *Session) FetchNew(_ context.Context, limit int) ([]RawMessage, error) {
	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(s.nextUID), Stop: 0}}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.cli.Fetch(uidSet, fetchOpts)

	var msgs []RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		// A range of nextUID:* matches the highest-UID message even
		// when nothing new arrived; skip anything below the baseline.
		uid := uint32(buf.UID)
		if uid < s.nextUID {
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}

		msgs = append(msgs, RawMessage{
			UID:  uid,
			Raw:  raw,
			Date: buf.InternalDate,
		})
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching new messages: %w", err)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].UID < msgs[j].UID })

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	for _, m := range msgs {
		if m.UID >= s.nextUID {
			s.nextUID = m.UID + 1
		}
	}

	return msgs, nil
}

// Close logs out gracefully, force-closing the connection if the server
// does not answer promptly.
func (s *Session) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- s.cli.Logout().Wait()
	}()

	select {
	case err := <-done:
		if closeErr := s.cli.Close(); err == nil {
			err = closeErr
		}
		return err
	case <-time.After(2 * time.Second):
		return s.cli.Close()
	}
}
