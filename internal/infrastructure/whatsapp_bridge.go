package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"

	_ "modernc.org/sqlite" // Pure Go SQLite driver for the device store
)

// WhatsAppBridge is a direct multidevice WhatsApp connection for the
// laboratory's number, used instead of the Cloud API webhook when the
// bridge is enabled. Pairing state lives in a local SQLite device store;
// a QR code is exposed for the initial login.
//
// Outbound sends are throttled so a burst of bot replies does not trip
// WhatsApp's spam heuristics.
type WhatsAppBridge struct {
	Client      *whatsmeow.Client
	HandlerFunc func(sender, text string)

	limiter *rate.Limiter
	logger  *slog.Logger

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppBridge(ctx context.Context, dbPath string, logger *slog.Logger) (*WhatsAppBridge, error) {
	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	b := &WhatsAppBridge{
		Client:  client,
		limiter: rate.NewLimiter(rate.Limit(1), 3), // 1 msg/s, burst 3
		logger:  logger,
	}
	client.AddEventHandler(b.handleEvent)
	return b, nil
}

// Connect logs in, waiting on a QR pairing when the device store has no
// identity yet.
func (b *WhatsAppBridge) Connect(ctx context.Context) error {
	if b.Client.Store.ID == nil {
		// No stored identity, new login
		qrChan, _ := b.Client.GetQRChannel(ctx)
		if err := b.Client.Connect(); err != nil {
			return err
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					b.qrLock.Lock()
					b.qrCode = evt.Code
					b.qrLock.Unlock()
					b.logger.Info("whatsapp pairing code issued")
				} else {
					b.logger.Info("whatsapp login event", "event", evt.Event)
				}
			}
		}()
		return nil
	}

	if err := b.Client.Connect(); err != nil {
		return err
	}
	b.logger.Info("whatsapp bridge connected with existing session")
	return nil
}

// GetQR returns the current pairing code, empty once logged in.
func (b *WhatsAppBridge) GetQR() string {
	b.qrLock.RLock()
	defer b.qrLock.RUnlock()
	return b.qrCode
}

func (b *WhatsAppBridge) IsLoggedIn() bool {
	return b.Client.Store.ID != nil
}

func (b *WhatsAppBridge) Disconnect() {
	b.Client.Disconnect()
}

// SendMessage delivers a reply to a phone number, blocking on the send
// throttle first.
func (b *WhatsAppBridge) SendMessage(to, content string) error {
	if err := b.limiter.Wait(context.Background()); err != nil {
		return err
	}

	jid, err := types.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return fmt.Errorf("invalid number format: %w", err)
	}

	_, err = b.Client.SendMessage(context.Background(), jid, &waProto.Message{
		Conversation: &content,
	})
	return err
}

// SendTyping shows the "composing" indicator while the reply is built.
func (b *WhatsAppBridge) SendTyping(to string) {
	jid, err := types.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return
	}
	_ = b.Client.SendPresence(context.Background(), types.PresenceAvailable)
	_ = b.Client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

func (b *WhatsAppBridge) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok || b.HandlerFunc == nil {
		return
	}
	// Group chats are not customer conversations.
	if msg.Info.IsGroup {
		return
	}

	sender, text := parseMessage(msg)
	if text == "" {
		return
	}
	b.HandlerFunc(sender, text)
}

// parseMessage extracts the sender phone number and text body from a
// whatsmeow event.
func parseMessage(evt *events.Message) (string, string) {
	sender := evt.Info.Sender.User
	var text string

	if evt.Message.Conversation != nil {
		text = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil {
		text = *evt.Message.ExtendedTextMessage.Text
	}

	return sender, text
}
