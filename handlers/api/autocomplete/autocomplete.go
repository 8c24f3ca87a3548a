package autocomplete

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

type (
	Request struct {
		Code           *string `json:"code"`
		CursorPosition int     `json:"cursorPosition"`
		Language       string  `json:"language"`
	}

	Response struct {
		Suggestion string `json:"suggestion"`
	}
)

func (req *Request) Bind(r *http.Request) error {
	if req.Code == nil {
		return errors.New("code is required")
	}
	return nil
}

// Suggest returns a canned completion for the end of code.
func Suggest(code string) string {
	trimmed := strings.TrimSpace(code)
	switch {
	case strings.HasSuffix(trimmed, "def"):
		return " my_function():\n    pass"
	case strings.HasSuffix(trimmed, "print"):
		return "('Hello World')"
	default:
		return " # mocked AI suggestion"
	}
}

func HandleSuggest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		err := render.DecodeJSON(r.Body, &req)
		if err == nil {
			err = req.Bind(r)
		}
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}
		render.JSON(w, r, Response{Suggestion: Suggest(*req.Code)})
	}
}
