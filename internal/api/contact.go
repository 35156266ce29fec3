package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"churchsite/internal/captcha"
	"churchsite/internal/models"
	"churchsite/internal/telemetry"
)

var errHoneypot = errors.New("Spam detected (honeypot)")

type captchaResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	Question string `json:"question"`
}

func (s *Server) handleCaptcha(w http.ResponseWriter, _ *http.Request) {
	c := s.captchas.Issue()
	writeJSON(w, http.StatusOK, captchaResponse{Success: true, Token: c.Token, Question: c.Question})
}

type contactRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Message       string `json:"message"`
	Website       string `json:"website"`
	MathChallenge any    `json:"math_challenge"`
	CaptchaToken  string `json:"captcha_token"`
}

// answer renders the captcha answer whether the form sent it as a string
// or a number.
func (c contactRequest) answer() string {
	switch v := c.MathChallenge.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

type contactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	decodeBody(r, &req)

	if err := s.checkContact(req); err != nil {
		s.logger.Info("contact rejected", "err", err, "ip", clientIP(r))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	_, err := s.store.CreateMessage(r.Context(), models.Message{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	})
	if err != nil {
		s.logger.Error("store contact message", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save message"})
		return
	}
	telemetry.ContactMessages.Inc()
	writeJSON(w, http.StatusOK, contactResponse{Success: true, Message: "Message received"})
}

func (s *Server) checkContact(req contactRequest) error {
	if req.Website != "" {
		telemetry.ContactRejects.WithLabelValues("honeypot").Inc()
		return errHoneypot
	}
	err := s.captchas.Verify(req.CaptchaToken, req.answer())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, captcha.ErrExpired):
		telemetry.ContactRejects.WithLabelValues("captcha_expired").Inc()
	case errors.Is(err, captcha.ErrWrong):
		telemetry.ContactRejects.WithLabelValues("captcha_wrong").Inc()
	default:
		telemetry.ContactRejects.WithLabelValues("captcha_invalid").Inc()
	}
	return err
}
