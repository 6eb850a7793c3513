package domain

import "encoding/json"

// Script names a page side routine. Browser backed pages evaluate Source(s) as a function
// of one JSON argument; other pages may emulate the same contract
type Script string

const (
	// ScriptSnapshot serializes the live DOM: Snapshot
	ScriptSnapshot Script = "snapshot"
	// ScriptClickCandidates lists challenge surfaces in click priority order: []Candidate
	ScriptClickCandidates Script = "click_candidates"
	// ScriptHover moves the pointer over a candidate: Target -> Ack
	ScriptHover Script = "hover"
	// ScriptClick clicks a candidate: Target -> Ack
	ScriptClick Script = "click"
	// ScriptReadResponse reads the widget response field: Response
	ScriptReadResponse Script = "read_response"
	// ScriptInjectToken writes a token into every token carrying surface: Injection -> Injected
	ScriptInjectToken Script = "inject_token"
)

// IframeSelectors are challenge frames, tried before in-document controls
var IframeSelectors = []string{
	"iframe[src*='challenges.cloudflare.com']",
	"iframe[src*='turnstile']",
	"iframe[title*='turnstile']",
	"iframe[title*='cloudflare']",
}

// FrameTargets are clickable controls inside a challenge frame
var FrameTargets = []string{
	"input[type='checkbox']",
	"button",
	"div[role='button']",
	"label",
	".challenge-form input",
	".challenge-form button",
	"[class*='checkbox']",
	"[class*='button']",
}

// DocumentTargets are in-document controls with a human description, in priority order
var DocumentTargets = [][2]string{
	{".cf-turnstile", "Turnstile widget container"},
	{"[data-sitekey]", "Widget with sitekey"},
	{"input[type='checkbox'][id*='cf-chl']", "Cloudflare challenge checkbox"},
	{"input[type='checkbox'][name*='turnstile']", "Turnstile checkbox"},
	{"label[for*='cf-chl']", "Cloudflare challenge label"},
	{"label[for*='turnstile']", "Turnstile label"},
	{"[class*='turnstile']", "Turnstile class elements"},
}

// ResponseSelectors carry a solved token
var ResponseSelectors = []string{
	`input[name="cf-turnstile-response"]`,
	`input[name*="turnstile"]`,
	`input[name*="captcha"]`,
}

var sources = map[Script]string{
	ScriptSnapshot: `() => ({ html: document.documentElement.outerHTML })`,

	ScriptClickCandidates: `() => {
  const iframeSel = ` + jsLiteral(IframeSelectors) + `;
  const frameTargets = ` + jsLiteral(FrameTargets) + `;
  const docTargets = ` + jsLiteral(DocumentTargets) + `;
  const out = [];
  const seen = new Set();
  window.__tsRefs = window.__tsRefs || {};
  const add = (el, kind, selector, description) => {
    if (seen.has(el)) { return; }
    seen.add(el);
    const ref = 'c' + out.length;
    window.__tsRefs[ref] = el;
    out.push({ ref, kind, selector, description, visible: el.offsetParent !== null });
  };
  for (const s of iframeSel) {
    for (const frame of document.querySelectorAll(s)) {
      let doc = null;
      try { doc = frame.contentDocument; } catch (e) { doc = null; }
      if (!doc) { add(frame, 'iframe', s, 'challenge frame'); continue; }
      for (const t of frameTargets) {
        for (const el of doc.querySelectorAll(t)) { add(el, 'iframe', s + ' ' + t, 'frame control'); }
      }
    }
  }
  for (const [s, d] of docTargets) {
    for (const el of document.querySelectorAll(s)) { add(el, 'document', s, d); }
  }
  return out;
}`,

	ScriptHover: `(arg) => {
  const el = (window.__tsRefs || {})[arg.ref];
  if (!el) { return { ok: false }; }
  const r = el.getBoundingClientRect();
  const opts = { bubbles: true, clientX: r.left + r.width / 2, clientY: r.top + r.height / 2 };
  el.dispatchEvent(new MouseEvent('mouseover', opts));
  el.dispatchEvent(new MouseEvent('mousemove', opts));
  return { ok: true };
}`,

	ScriptClick: `(arg) => {
  const el = (window.__tsRefs || {})[arg.ref];
  if (!el) { return { ok: false }; }
  el.click();
  return { ok: true };
}`,

	ScriptReadResponse: `() => {
  const f = document.querySelector('input[name="cf-turnstile-response"]');
  if (f && f.value) { return { token: f.value }; }
  if (window.turnstile && typeof window.turnstile.getResponse === 'function') {
    try { return { token: window.turnstile.getResponse() || '' }; } catch (e) {}
  }
  return { token: '' };
}`,

	ScriptInjectToken: `(arg) => {
  const surfaces = [];
  const seen = new Set();
  for (const s of ` + jsLiteral(ResponseSelectors) + `) {
    for (const f of document.querySelectorAll(s)) {
      if (seen.has(f)) { continue; }
      seen.add(f);
      f.value = arg.token;
      f.dispatchEvent(new Event('change', { bubbles: true }));
      surfaces.push(f.name || f.id || s);
    }
  }
  if (window.turnstile && typeof window.turnstile.setResponse === 'function') {
    try { window.turnstile.setResponse('0', arg.token); surfaces.push('turnstile.setResponse'); } catch (e) {}
  }
  return { accepted: surfaces.length, surfaces };
}`,
}

// Source returns the browser side routine for s, or "" when unknown
func Source(s Script) string { return sources[s] }

// jsLiteral renders v as a JS expression. JSON strings and arrays are valid JS literals
func jsLiteral(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic("domain: script literal: " + err.Error())
	}
	return string(b)
}
