package auth

import "html/template"

// relayTemplate is served at the redirect URI. Implicit grants return the
// token in the URL fragment, which browsers never send to the server, so the
// page posts the query and fragment back to /return and shows the outcome.
var relayTemplate = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Life Engine CLI</title>
    <style>
        :root {
            --bg: #0d0d14;
            --text: #e8e8ed;
            --muted: #8b8b9e;
            --ok: #34d399;
            --fail: #f87171;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
            background: var(--bg);
            color: var(--text);
            display: flex;
            align-items: center;
            justify-content: center;
            min-height: 100vh;
            margin: 0;
        }
        .card { max-width: 28rem; text-align: center; }
        .muted { color: var(--muted); font-size: 0.875rem; }
        .ok { color: var(--ok); }
        .fail { color: var(--fail); }
    </style>
</head>
<body>
    <div class="card">
        <h1 id="title">Completing sign-in&hellip;</h1>
        <p id="detail" class="muted">Handing the authorization response to {{.App}}.</p>
    </div>
    <script>
        (function () {
            var title = document.getElementById("title");
            var detail = document.getElementById("detail");
            var body = JSON.stringify({
                query: window.location.search.replace(/^\?/, ""),
                fragment: window.location.hash.replace(/^#/, "")
            });
            history.replaceState(null, "", window.location.pathname);
            fetch("{{.ReturnPath}}", {
                method: "POST",
                headers: {"Content-Type": "application/json"},
                body: body
            }).then(function (r) { return r.json(); }).then(function (res) {
                title.textContent = res.title;
                title.className = res.resolved ? "ok" : "fail";
                detail.textContent = res.message;
            }).catch(function (err) {
                title.textContent = "Sign-in failed";
                title.className = "fail";
                detail.textContent = String(err);
            });
        })();
    </script>
</body>
</html>
`))
