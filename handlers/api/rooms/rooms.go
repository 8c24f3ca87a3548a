package rooms

import (
	"context"
	"errors"
	"net/http"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// maxCodeSize bounds the body of a save request.
const maxCodeSize = 5000000

type (
	RoomService interface {
		CreateRoom(ctx context.Context) (string, error)
		Content(ctx context.Context, roomID string) (string, error)
		Save(ctx context.Context, roomID, content string) error
		ActiveRooms() []core.ActiveRoom
	}

	RoomCreateResponse struct {
		RoomID string `json:"room_id"`
	}

	SaveCodeRequest struct {
		Code *string `json:"code"`
	}
)

func (req *SaveCodeRequest) Bind(r *http.Request) error {
	if req.Code == nil {
		return errors.New("code is required")
	}
	return nil
}

func HandleCreate(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := rooms.CreateRoom(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to create room")
			renderStoreError(w, r, err, "Failed to create room")
			return
		}
		render.JSON(w, r, RoomCreateResponse{RoomID: id})
	}
}

func HandleGetCode(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		content, err := rooms.Content(r.Context(), roomID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":   err,
				"room_id": roomID,
			}).Warn("Failed to load room content")
			renderStoreError(w, r, err, "Failed to load room content")
			return
		}
		render.JSON(w, r, core.Room{ID: roomID, Content: content})
	}
}

func HandleSaveCode(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		r.Body = http.MaxBytesReader(w, r.Body, maxCodeSize)

		var req SaveCodeRequest
		if err := decode(r, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		if err := rooms.Save(r.Context(), roomID, *req.Code); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":   err,
				"room_id": roomID,
			}).Error("Failed to save room content")
			renderStoreError(w, r, err, "Failed to save room content")
			return
		}

		logrus.WithFields(logrus.Fields{
			"room_id":     roomID,
			"data_length": len(*req.Code),
		}).Debug("Room content saved")
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleListActive(rooms RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, rooms.ActiveRooms())
	}
}

// decode reads a JSON body whatever its declared content type.
func decode(r *http.Request, v render.Binder) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return err
	}
	return v.Bind(r)
}

func renderStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrStoreUnavailable) {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
