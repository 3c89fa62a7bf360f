package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	online  = "online"
	offline = "offline"

	publishTimeout = 10 * time.Second
)

// HomeMessage is the payload of <prefix>/home/set.
type HomeMessage struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// StatusMessage is published retained on <prefix>/status after every refresh.
type StatusMessage struct {
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

type OnHomeMessage func(msg *HomeMessage)
type OnRefreshRequest func()

// client is the part of paho.Client in use.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Bridge publishes weather state to an MQTT broker and listens for home
// location updates and refresh requests.
type Bridge struct {
	client   client
	logger   *slog.Logger
	prefix   string
	validate *validator.Validate

	OnHomeMessage    OnHomeMessage
	OnRefreshRequest OnRefreshRequest
}

func New(broker string, port int16, username string, password string, prefix string) *Bridge {
	logger := slog.Default().With("module", "mqtt")
	b := &Bridge{
		logger:   logger,
		prefix:   prefix,
		validate: validator.New(),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID("meteoam-" + uuid.NewString()[:8])
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetWill(b.Topic("availability"), offline, 1, true)
	opts.OnConnect = func(c paho.Client) {
		logger.Info("MQTT connected")
		b.onConnect()
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	installLoggers(logger)

	b.client = paho.NewClient(opts)
	return b
}

func (b *Bridge) Topic(name string) string {
	return b.prefix + "/" + name
}

func (b *Bridge) Connect() error {
	b.logger.Debug("connecting MQTT client")
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// onConnect runs on every (re)connect, subscriptions do not survive a
// reconnect with a clean session.
func (b *Bridge) onConnect() {
	if err := b.publish("availability", true, online); err != nil {
		b.logger.Error("error publishing availability", slog.Any("error", err))
	}

	for _, name := range []string{"home/set", "refresh"} {
		token := b.client.Subscribe(b.Topic(name), 1, b.handleMessage)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			b.logger.Error("error subscribing", slog.String("topic", b.Topic(name)), slog.Any("error", token.Error()))
		}
	}
}

func (b *Bridge) Disconnect() {
	b.logger.Info("disconnecting MQTT client")
	if err := b.publish("availability", true, offline); err != nil {
		b.logger.Warn("error publishing availability", slog.Any("error", err))
	}
	b.client.Disconnect(250)
}

func (b *Bridge) handleMessage(c paho.Client, msg paho.Message) {
	switch msg.Topic() {
	case b.Topic("home/set"):
		var home HomeMessage
		if err := json.Unmarshal(msg.Payload(), &home); err != nil {
			b.logger.Error("error when reading home message", slog.Any("error", err))
			return
		}
		if err := b.validate.Struct(&home); err != nil {
			b.logger.Error("invalid home message", slog.Any("error", err))
			return
		}
		b.logger.Info("received home location", slog.String("name", home.Name), slog.Float64("latitude", *home.Latitude), slog.Float64("longitude", *home.Longitude))
		if b.OnHomeMessage != nil {
			b.OnHomeMessage(&home)
		}

	case b.Topic("refresh"):
		if b.OnRefreshRequest != nil {
			b.OnRefreshRequest()
		}

	default:
		b.logger.Warn("unknown topic", "topic", msg.Topic())
	}
}

// PublishState publishes state as JSON, retained, on <prefix>/state.
func (b *Bridge) PublishState(state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return b.publish("state", true, data)
}

func (b *Bridge) PublishStatus(status StatusMessage) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return b.publish("status", true, data)
}

func (b *Bridge) publish(name string, retained bool, payload any) error {
	token := b.client.Publish(b.Topic(name), 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", b.Topic(name))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", b.Topic(name), err)
	}
	return nil
}
