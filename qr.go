package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// joinURL returns the address players open to join the session, derived
// from the request that asked for it. The /<code> page itself belongs to the
// web client deployed in front of this server; the server only answers under
// /api.
func joinURL(cfg *Config, r *http.Request, sessionID string) string {
	scheme := cfg.scheme()
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/" + sessionID
}

// serveQR renders a PNG QR code pointing at the session's join page.
func (a *api) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("gameId")
		if _, err := a.engine.Session(r.Context(), id); err != nil {
			a.writeError(w, r, err)
			return
		}

		png, err := qrcode.Encode(joinURL(a.cfg, r, id), qrcode.Medium, qrSize)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("encode qr code: %w", err))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(a.cfg, w)

		_, _ = w.Write(png)
	}
}
