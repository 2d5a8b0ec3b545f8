package platform

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrTransient is a network failure, server error or rate limit; retry.
	ErrTransient = errors.New("transient platform error")
	// ErrPermission means the automation account lacks the capability.
	ErrPermission = errors.New("missing permission")
	// ErrAlreadyGone means the target is already banned, removed or deleted.
	ErrAlreadyGone = errors.New("target already gone")
	// ErrNotAttributed means no audit-log entry matched the event.
	ErrNotAttributed = errors.New("event not attributed")
)

// JSON error codes returned by the REST API.
const (
	codeUnknownChannel     = 10003
	codeUnknownInvite      = 10006
	codeUnknownMember      = 10007
	codeUnknownMessage     = 10008
	codeUnknownRole        = 10011
	codeUnknownUser        = 10013
	codeUnknownWebhook     = 10015
	codeUnknownBan         = 10026
	codeMissingAccess      = 50001
	codeMissingPermissions = 50013
)

// RetryAfter reports the server-specified wait of a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Classify wraps err with the sentinel of its taxonomy class. Errors that fit
// no class are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrPermission) || errors.Is(err, ErrAlreadyGone) {
		return err
	}
	if _, ok := RetryAfter(err); ok {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case codeUnknownChannel, codeUnknownInvite, codeUnknownMember, codeUnknownMessage,
				codeUnknownRole, codeUnknownUser, codeUnknownWebhook, codeUnknownBan:
				return fmt.Errorf("%w: %w", ErrAlreadyGone, err)
			case codeMissingAccess, codeMissingPermissions:
				return fmt.Errorf("%w: %w", ErrPermission, err)
			}
		}
		if rest.Response != nil {
			switch code := rest.Response.StatusCode; {
			case code == http.StatusForbidden:
				return fmt.Errorf("%w: %w", ErrPermission, err)
			case code == http.StatusNotFound:
				return fmt.Errorf("%w: %w", ErrAlreadyGone, err)
			case code == http.StatusTooManyRequests || code >= 500:
				return fmt.Errorf("%w: %w", ErrTransient, err)
			}
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// Gone reports whether err means the target no longer exists.
func Gone(err error) bool {
	return errors.Is(err, ErrAlreadyGone)
}
