// Package embedscript produces the embeddable widget assets: the script tag
// customers paste into their pages, the widget.js page shim, and the frame
// HTML shells. The shim is deliberately dumb — it creates DOM nodes, relays
// postMessage traffic, and applies geometry it is told to apply; every
// decision is made host-side.
package embedscript

import (
	"fmt"
	"strings"
)

// Options configures a generated shim.
type Options struct {
	// SessionWSURL is the absolute websocket URL of the host session endpoint.
	SessionWSURL string
}

// ScriptTag returns the HTML snippet a tenant embeds in their page.
func ScriptTag(serverURL, tenantHash string, dev bool) string {
	tag := fmt.Sprintf(`<script src="%s/widget.js" data-tenant=%q`, serverURL, tenantHash)
	if dev {
		tag += ` data-dev="true"`
	}
	tag += ` async></script>`
	return tag
}

// Generate returns the widget.js shim configured for the given host.
func Generate(opts Options) string {
	return strings.ReplaceAll(shimJS, "{{SESSION_WS_URL}}", opts.SessionWSURL)
}

// FrameHTML returns the widget frame shell. The staging variant loads the
// staging application bundle; everything inside the frame is the chat
// application's own concern.
func FrameHTML(staging bool) string {
	bundle := "/frame-app.js"
	if staging {
		bundle = "/frame-app-staging.js"
	}
	return strings.ReplaceAll(frameHTML, "{{BUNDLE}}", bundle)
}

const shimJS = `(function() {
  'use strict';

  var scriptTag = document.currentScript;
  var tenant = scriptTag ? scriptTag.getAttribute('data-tenant') : '';
  var devAttr = scriptTag ? scriptTag.getAttribute('data-dev') === 'true' : false;
  var scriptUrl = scriptTag ? scriptTag.src : '';

  var container = null;
  var iframe = null;
  var ws = new WebSocket('{{SESSION_WS_URL}}');

  function send(msg) {
    if (ws.readyState === WebSocket.OPEN) {
      ws.send(JSON.stringify(msg));
    }
  }

  function applyGeometry(g) {
    if (!container) return;
    container.style.width = g.width;
    container.style.height = g.height;
    container.style.bottom = g.bottom;
    container.style.right = g.right;
    container.style.zIndex = g.zIndex;
    container.style.borderRadius = g.borderRadius;
    if (iframe) iframe.style.borderRadius = g.borderRadius;
  }

  function mount(src, g) {
    if (container) return;
    container = document.createElement('div');
    container.id = 'picasso-widget-container';
    container.style.position = 'fixed';
    container.style.overflow = 'hidden';
    container.style.boxShadow = '0 8px 32px rgba(0,0,0,0.25)';
    iframe = document.createElement('iframe');
    iframe.id = 'picasso-widget-frame';
    iframe.src = src;
    iframe.style.width = '100%';
    iframe.style.height = '100%';
    iframe.style.border = 'none';
    iframe.allow = 'microphone; clipboard-write';
    container.appendChild(iframe);
    document.body.appendChild(container);
    applyGeometry(g);
    container.addEventListener('click', function() { send({type: 'CLICK'}); });
  }

  function unmount() {
    if (container && container.parentNode) {
      container.parentNode.removeChild(container);
    }
    container = null;
    iframe = null;
  }

  ws.addEventListener('open', function() {
    send({
      type: 'BOOT',
      scriptUrl: scriptUrl,
      pageUrl: window.location.href,
      tenant: tenant,
      dev: devAttr,
      width: window.innerWidth,
      height: window.innerHeight
    });
  });

  ws.addEventListener('message', function(e) {
    var msg;
    try { msg = JSON.parse(e.data); } catch (err) { return; }
    switch (msg.type) {
      case 'DOM_MOUNT':
        mount(msg.src, msg.geometry);
        break;
      case 'DOM_APPLY':
        applyGeometry(msg.geometry);
        break;
      case 'RELAY':
        if (iframe && iframe.contentWindow) {
          iframe.contentWindow.postMessage(msg.envelope, msg.targetOrigin);
        }
        break;
      case 'DOM_UNMOUNT':
        unmount();
        break;
    }
  });

  window.addEventListener('message', function(e) {
    if (!e.data || !e.data.type) return;
    send({
      type: 'PAGE_MESSAGE',
      origin: e.origin,
      source: (iframe && e.source === iframe.contentWindow) ? 'iframe' : 'window',
      envelope: e.data
    });
  });

  window.addEventListener('resize', function() {
    send({type: 'VIEWPORT', width: window.innerWidth, height: window.innerHeight});
  });
})();
`

const frameHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Picasso Chat</title>
  <style>html, body { margin: 0; height: 100%; }</style>
</head>
<body>
  <div id="picasso-root"></div>
  <script src="{{BUNDLE}}"></script>
</body>
</html>
`
