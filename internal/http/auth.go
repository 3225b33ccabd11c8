package http

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskdesk/internal/metrics"
	"taskdesk/internal/service"
	"taskdesk/internal/session"
)

const (
	sessionCookie = "taskdesk_session"
	csrfCookie    = "taskdesk_csrf"
	flashCookie   = "taskdesk_flash"
)

//go:embed templates/*.html
var templateFS embed.FS

func loadTemplates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

type loginRequest struct {
	Email     string `form:"email"`
	Password  string `form:"password"`
	CSRFToken string `form:"_csrf_token"`
}

func (h *Handler) registerForm(c *gin.Context) {
	token, ok := h.issueCSRF(c)
	if !ok {
		return
	}
	flash := h.popFlash(c)
	c.HTML(http.StatusOK, "register.html", gin.H{
		"csrf_token":    token,
		"flash":         flash,
		"last_username": flash.LastUsername,
		"first_name":    flash.FirstName,
		"last_name":     flash.LastName,
	})
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBind(&req); err != nil {
		h.redirectWithFlash(c, service.RouteRegister, service.Flash{Kind: service.FlashError, Message: "invalid registration form"})
		return
	}
	req.CSRFBinding, _ = c.Cookie(csrfCookie)

	out, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		h.logger.WithError(err).Error("registration failed")
	}

	outcome := "rejected"
	if out.Flash.Kind == service.FlashSuccess {
		outcome = "success"
		h.clearCookie(c, csrfCookie)
	}
	metrics.AuthEvents.WithLabelValues("register", outcome).Inc()

	h.redirectWithFlash(c, out.Redirect, out.Flash)
}

func (h *Handler) loginForm(c *gin.Context) {
	token, ok := h.issueCSRF(c)
	if !ok {
		return
	}
	flash := h.popFlash(c)
	data := gin.H{
		"csrf_token":    token,
		"last_username": flash.LastUsername,
	}
	if flash.Kind == service.FlashError {
		data["error"] = flash.Message
	} else if flash.Message != "" {
		data["notice"] = flash.Message
	}
	c.HTML(http.StatusOK, "login.html", data)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.loginFailed(c, "invalid login form", "")
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	binding, _ := c.Cookie(csrfCookie)
	if err := h.sessions.Validate(service.CSRFIntent, req.CSRFToken, binding); err != nil {
		h.logger.WithError(err).Warn("login rejected: csrf")
		h.loginFailed(c, "invalid CSRF token", req.Email)
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.loginFailed(c, "invalid credentials", req.Email)
			return
		}
		h.logger.WithError(err).Error("login failed")
		h.loginFailed(c, "login failed, please try again", req.Email)
		return
	}

	token, _, err := h.sessions.IssueSession(user)
	if err != nil {
		h.logger.WithError(err).Error("issue session")
		h.loginFailed(c, "login failed, please try again", req.Email)
		return
	}

	h.setCookie(c, sessionCookie, token, h.sessions.SessionTTL())
	h.clearCookie(c, csrfCookie)
	metrics.AuthEvents.WithLabelValues("login", "success").Inc()
	h.logger.WithField("user_id", user.ID).Info("user logged in")
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) loginFailed(c *gin.Context, message, email string) {
	metrics.AuthEvents.WithLabelValues("login", "rejected").Inc()
	h.redirectWithFlash(c, service.RouteLogin, service.Flash{
		Kind:         service.FlashError,
		Message:      message,
		LastUsername: email,
	})
}

// logout revokes the current session, if any, and always clears the cookie.
func (h *Handler) logout(c *gin.Context) {
	if claims := h.currentSession(c); claims != nil {
		if err := h.sessions.Revoke(c.Request.Context(), claims); err != nil {
			h.logger.WithError(err).Warn("revoke session")
		}
	}
	h.clearCookie(c, sessionCookie)
	metrics.AuthEvents.WithLabelValues("logout", "success").Inc()
	c.Redirect(http.StatusSeeOther, service.RouteLogin)
}

func (h *Handler) currentSession(c *gin.Context) *session.SessionClaims {
	token, err := c.Cookie(sessionCookie)
	if err != nil || token == "" {
		return nil
	}
	claims, err := h.sessions.ParseSession(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, session.ErrInvalidToken) && !errors.Is(err, session.ErrRevoked) {
			h.logger.WithError(err).Warn("session lookup failed")
		}
		return nil
	}
	return claims
}

func (h *Handler) issueCSRF(c *gin.Context) (string, bool) {
	existing, _ := c.Cookie(csrfCookie)
	token, binding, err := h.sessions.IssueCSRF(service.CSRFIntent, existing)
	if err != nil {
		h.logger.WithError(err).Error("issue csrf token")
		c.String(http.StatusInternalServerError, "internal error")
		return "", false
	}
	h.setCookie(c, csrfCookie, binding, h.sessions.CSRFTTL())
	return token, true
}

func (h *Handler) redirectWithFlash(c *gin.Context, location string, flash service.Flash) {
	if flash.Message != "" {
		value, err := h.sessions.EncodeFlash(session.Flash{
			Kind:         string(flash.Kind),
			Message:      flash.Message,
			LastUsername: flash.LastUsername,
			FirstName:    flash.FirstName,
			LastName:     flash.LastName,
		})
		if err != nil {
			h.logger.WithError(err).Warn("encode flash")
		} else {
			h.setCookie(c, flashCookie, value, h.sessions.FlashTTL())
		}
	}
	c.Redirect(http.StatusSeeOther, location)
}

// popFlash reads the pending flash and clears it so it shows once.
func (h *Handler) popFlash(c *gin.Context) service.Flash {
	value, err := c.Cookie(flashCookie)
	if err != nil || value == "" {
		return service.Flash{}
	}
	h.clearCookie(c, flashCookie)

	flash, err := h.sessions.DecodeFlash(value)
	if err != nil {
		return service.Flash{}
	}
	return service.Flash{
		Kind:         service.FlashKind(flash.Kind),
		Message:      flash.Message,
		LastUsername: flash.LastUsername,
		FirstName:    flash.FirstName,
		LastName:     flash.LastName,
	}
}

func (h *Handler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(ttl.Seconds()), "/", "", h.secureCookies, true)
}

func (h *Handler) clearCookie(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", h.secureCookies, true)
}
