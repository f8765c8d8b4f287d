// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-martini/martini"
	"github.com/martini-contrib/binding"
	"github.com/odeke-em/extractor"
	"github.com/odeke-em/meddler"
	"github.com/skip2/go-qrcode"
	"github.com/skratchdot/open-golang/open"
)

var guiEnvKeyAlias = &extractor.EnvKey{
	PubKeyAlias:  "GDS_PRESENTER_PUB_KEY",
	PrivKeyAlias: "GDS_PRESENTER_PRIV_KEY",
}

var guiEnvKeySet = extractor.KeySetFromEnv(guiEnvKeyAlias)

// resultPayload is what the browser-side confirmation page posts back,
// bound the same way drive-server/server.go binds meddler.Payload.
type resultPayload struct {
	Action   string `json:"action" form:"action"`
	Stdout   string `json:"stdout" form:"stdout"`
	Stderr   string `json:"stderr" form:"stderr"`
	ExitCode int    `json:"exit_code" form:"exit_code"`
}

// GUIPresenter spins up a short-lived local HTTP server (martini, like
// drive-server/server.go's /qr endpoint), opens the confirmation page showing
// the generated command in the default browser, and blocks until that page
// posts a disposition back or ten minutes pass. A QR code of the page URL is
// encoded but not served or displayed.
type GUIPresenter struct{}

func NewGUIPresenter() *GUIPresenter {
	return &GUIPresenter{}
}

func (p *GUIPresenter) Present(script, displayCmd, debugInfo string) (Outcome, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Outcome{}, fmt.Errorf("presenter_gui: listen: %w", err)
	}
	defer ln.Close()

	resultCh := make(chan resultPayload, 1)
	var once sync.Once

	m := martini.Classic()
	m.Get("/", func() string { return renderConfirmPage(displayCmd, script, debugInfo) })
	m.Post("/result", binding.Bind(meddler.Payload{}), func(pl meddler.Payload, req *http.Request) string {
		var rp resultPayload
		rp.Action = req.FormValue("action")
		rp.Stdout = req.FormValue("stdout")
		rp.Stderr = req.FormValue("stderr")
		once.Do(func() { resultCh <- rp })
		return "ok"
	})

	srv := &http.Server{Handler: m}
	go srv.Serve(ln)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	url := fmt.Sprintf("http://127.0.0.1:%d/", addr.Port)

	png, qerr := qrcode.Encode(url, qrcode.Medium, 256)
	if qerr == nil {
		_ = png // rendering target is the confirmation page itself; png kept for a future /qr.png route
	}

	if err := open.Start(url); err != nil {
		// non-fatal: the operator can still navigate to url manually
		_ = err
	}

	select {
	case rp := <-resultCh:
		switch rp.Action {
		case "success":
			return Outcome{Action: "success"}, nil
		case "cancel":
			return Outcome{Action: "cancelled"}, nil
		case "direct_feedback":
			return Outcome{Action: "direct_feedback", DirectFeedback: rp.Stdout}, nil
		default:
			return Outcome{Action: "error", ErrorInfo: "unrecognized GUI disposition"}, nil
		}
	case <-time.After(10 * time.Minute):
		return Outcome{Action: "error", ErrorInfo: "GUI confirmation timed out"}, nil
	}
}

func renderConfirmPage(displayCmd, script, debugInfo string) string {
	return fmt.Sprintf(`<html><body>
<h3>Run on the remote desktop</h3>
<pre>%s</pre>
<p>Command: %s</p>
<form method="post" action="/result">
  <button name="action" value="success">Success</button>
  <button name="action" value="cancel">Cancel</button>
</form>
</body></html>`, script, displayCmd)
}
