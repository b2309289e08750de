/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const robots = `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /
`

func servePlain(cfg *Config, log zerolog.Logger, body string, cache bool) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if cache {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte(body)); err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("write response")
		}
	}
}

// serveHealthCheck also answers /warmup, which hosting platforms hit to wake
// an idle instance.
func serveHealthCheck(cfg *Config, log zerolog.Logger) httprouter.Handle {
	return servePlain(cfg, log, "OK\n", false)
}

func serveRobots(cfg *Config, log zerolog.Logger) httprouter.Handle {
	return servePlain(cfg, log, robots, true)
}

func serveVersion(cfg *Config, log zerolog.Logger) httprouter.Handle {
	return servePlain(cfg, log, "whosaidit v"+releaseVersion+"\n", false)
}
