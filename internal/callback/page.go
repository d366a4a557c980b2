package callback

import "net/http"

const successPage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Login successful</title></head>
<body><p>Login successful. You can close this tab and return to your terminal.</p></body>
</html>`

const failurePage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Login failed</title></head>
<body><p>Login failed. Return to your terminal for details.</p></body>
</html>`

// writePage serves the static terminal page shown in the browser.
func writePage(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}
