package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/cards"
)

// StatusFor maps a lifecycle error to an HTTP status code.
func StatusFor(err error) int {
	switch cards.KindOf(err) {
	case cards.KindNotFound:
		return http.StatusNotFound
	case cards.KindConflict:
		return http.StatusConflict
	case cards.KindValidation:
		return http.StatusBadRequest
	case cards.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error response. Internal failures are logged
// and reported without detail.
func WriteError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := publicMessage(err)
	switch status {
	case http.StatusInternalServerError:
		log.WithError(err).WithFields(log.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString(ContextRequestID),
		}).Error("request failed")
		message = "internal error"
	case http.StatusServiceUnavailable:
		log.WithError(err).WithField("path", c.FullPath()).Warn("request failed with transient error")
		message = "service busy, retry later"
	}
	c.JSON(status, gin.H{"error": message})
}

// publicMessage strips the operation prefix of a tagged lifecycle error.
func publicMessage(err error) string {
	var tagged *cards.Error
	if errors.As(err, &tagged) && tagged.Err != nil {
		return tagged.Err.Error()
	}
	return err.Error()
}
