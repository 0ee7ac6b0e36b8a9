package handler

import (
	"net/http"
)

// debugPage is a minimal operator page for poking at the gateway: it fires a
// request with the debug parameter and shows the breadcrumb headers.
const debugPage = `<!DOCTYPE html>
<html>
<head><title>vidproxy debug</title></head>
<body>
<h1>vidproxy debug</h1>
<form onsubmit="probe(event)">
  <input id="path" type="text" size="60" placeholder="/videos/clip.mp4?derivative=mobile">
  <button type="submit">Probe</button>
</form>
<pre id="out"></pre>
<script>
async function probe(e) {
  e.preventDefault();
  const path = document.getElementById('path').value;
  const sep = path.includes('?') ? '&' : '?';
  const resp = await fetch(path + sep + 'debug=1', {method: 'HEAD'});
  let out = resp.status + ' ' + resp.statusText + '\n';
  for (const [k, v] of resp.headers.entries()) {
    out += k + ': ' + v + '\n';
  }
  document.getElementById('out').textContent = out;
}
</script>
</body>
</html>
`

// Debug serves the static debug page.
func Debug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(debugPage))
}
