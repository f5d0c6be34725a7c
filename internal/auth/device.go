// Package auth identifies the browser (device) behind each request and runs
// the Google sign-in code flow.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"raseed/internal/log"
)

const (
	DeviceCookie = "raseed_device"
	deviceTTL    = 365 * 24 * time.Hour
	deviceIssuer = "raseed"
)

var ErrInvalidDevice = errors.New("invalid or expired device token")

type DeviceClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// Devices signs and verifies the device cookie. The device ID owns the
// session and the query history of one browser.
type Devices struct {
	secret []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

// NewDevices returns a cookie signer. Without a secret a random one is
// generated, so devices are forgotten on restart.
func NewDevices(secret string, secure bool, logger *log.Logger) (*Devices, error) {
	logger = logger.WithComponent(log.ComponentAuth)
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate device secret: %w", err)
		}
		logger.Warn("DEVICE_SECRET not set, device cookies will not survive a restart")
	}
	return &Devices{
		secret: key,
		secure: secure,
		ttl:    deviceTTL,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}, nil
}

func (d *Devices) Issue(deviceID string) (string, time.Time, error) {
	now := d.now().UTC()
	exp := now.Add(d.ttl)
	claims := DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    deviceIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(d.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign device token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a device token and returns the claims.
func (d *Devices) Parse(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return d.secret, nil
		},
		jwt.WithIssuer(deviceIssuer),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}
	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, ErrInvalidDevice
	}
	return claims, nil
}

// Resolve returns the request's device ID, setting a fresh cookie when the
// request has none, an invalid one, or one past half its lifetime.
func (d *Devices) Resolve(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(DeviceCookie); err == nil {
		claims, err := d.Parse(c.Value)
		if err == nil {
			if claims.ExpiresAt != nil && claims.ExpiresAt.Sub(d.now()) > d.ttl/2 {
				return claims.DeviceID, nil
			}
			return claims.DeviceID, d.setCookie(w, claims.DeviceID)
		}
		d.logger.DebugContext(r.Context(), "Replacing invalid device cookie", log.FieldError, err)
	}
	id := d.newID()
	return id, d.setCookie(w, id)
}

func (d *Devices) setCookie(w http.ResponseWriter, deviceID string) error {
	token, exp, err := d.Issue(deviceID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   d.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Middleware resolves the device and stores its ID in the request context.
func (d *Devices) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := d.Resolve(w, r)
		if err != nil {
			d.logger.ErrorContext(r.Context(), "Device cookie failed", log.FieldError, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		ctx := WithDevice(r.Context(), id)
		logger := log.FromContext(ctx).With(log.FieldDeviceID, id)
		next.ServeHTTP(w, r.WithContext(log.IntoContext(ctx, logger)))
	})
}

type deviceKey struct{}

func WithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceKey{}, deviceID)
}

func DeviceFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceKey{}).(string)
	return id, ok && id != ""
}
