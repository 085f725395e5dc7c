package handler

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Donor Reports</title>
  <style>
    :root {
      --primary: #1976d2;
      --bg: #f5f5f5;
      --paper: #fff;
      --text: #212121;
      --muted: #757575;
      --line: #e0e0e0;
      --ok-bg: #edf7ed;
      --ok-text: #1e4620;
      --bad-bg: #fdeded;
      --bad-text: #5f2120;
      --info-bg: #e5f6fd;
      --info-text: #014361;
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font-family: Roboto, "Helvetica Neue", Arial, sans-serif;
      font-size: 14px;
    }

    main { max-width: 960px; margin: 32px auto; padding: 0 16px; }
    h1 { font-weight: 400; font-size: 28px; margin: 0 0 16px; text-align: center; }
    h2 { font-weight: 500; font-size: 18px; margin: 0 0 12px; }

    .paper { background: var(--paper); border-radius: 4px; box-shadow: 0 1px 3px rgba(0,0,0,.2); padding: 20px; margin-bottom: 24px; }

    #dropzone {
      border: 2px dashed #9e9e9e;
      border-radius: 4px;
      padding: 32px 16px;
      text-align: center;
      cursor: pointer;
      max-width: 420px;
      margin: 0 auto;
    }
    #dropzone.active { background: #e0f7fa; }

    .columns { color: var(--muted); font-size: 12px; text-align: center; margin-top: 8px; }
    .file { display: flex; justify-content: space-between; align-items: center; max-width: 420px; margin: 16px auto 0; }
    .actions { text-align: center; margin-top: 16px; }

    button {
      background: var(--primary);
      color: #fff;
      border: 0;
      border-radius: 4px;
      padding: 8px 16px;
      font-size: 14px;
      cursor: pointer;
    }
    button.text { background: transparent; color: var(--primary); }
    button:disabled { background: #bdbdbd; cursor: default; }

    .progress { height: 8px; background: #bbdefb; border-radius: 4px; overflow: hidden; margin-top: 16px; }
    .progress > div { height: 100%; background: var(--primary); transition: width .4s; }
    .progress-label { text-align: center; color: var(--muted); margin-top: 4px; }

    .notices { position: fixed; bottom: 16px; left: 50%; transform: translateX(-50%); width: 420px; }
    .notice { display: flex; justify-content: space-between; align-items: center; padding: 8px 16px; border-radius: 4px; margin-top: 8px; }
    .notice.success { background: var(--ok-bg); color: var(--ok-text); }
    .notice.error { background: var(--bad-bg); color: var(--bad-text); }
    .notice.completed { background: var(--info-bg); color: var(--info-text); }
    .notice button { background: transparent; color: inherit; padding: 0 4px; }

    .toolbar { display: flex; gap: 12px; align-items: center; margin-bottom: 12px; }
    .toolbar input { flex: 1; padding: 8px; border: 1px solid var(--line); border-radius: 4px; font-size: 14px; }

    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 10px 8px; border-bottom: 1px solid var(--line); }
    th { font-weight: 500; }
    td.empty { text-align: center; color: var(--muted); }

    .pager { display: flex; justify-content: center; gap: 4px; margin-top: 12px; }
    .pager button { background: transparent; color: var(--text); min-width: 32px; padding: 4px 8px; }
    .pager button.current { background: var(--primary); color: #fff; }
  </style>
</head>
<body>
  <main>
    <section class="paper">
      <h1>Upload Excel File</h1>
      <div id="dropzone">
        <input id="file-input" type="file" accept=".xlsx,.xls,.csv" hidden />
        <div id="dropzone-text">Drag &amp; drop a spreadsheet here, or click to select one</div>
      </div>
      <div class="columns" id="columns"></div>
      <div class="file" id="file" hidden>
        <span id="file-name"></span>
        <button class="text" id="remove-file" type="button">Remove File</button>
      </div>
      <div class="actions">
        <button id="generate" type="button" disabled>Generate Reports</button>
      </div>
      <div id="progress-wrap" hidden>
        <div class="progress"><div id="progress-bar" style="width:0%"></div></div>
        <div class="progress-label" id="progress-label">0% Complete</div>
      </div>
    </section>

    <section class="paper">
      <h2>Donor Reports</h2>
      <div class="toolbar">
        <input id="search" type="search" placeholder="Search reports" />
        <button class="text" id="refresh" type="button" title="Refresh">&#x21bb; Refresh</button>
      </div>
      <table>
        <thead>
          <tr><th>Full Name</th><th>Donor ID</th><th>Email</th><th>Report</th></tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
      <div class="pager" id="pager"></div>
    </section>
  </main>

  <div class="notices" id="notices"></div>

  <script>
    (function () {
      var progressTimer = null;
      var noticeTimers = [];

      function esc(value) {
        return String(value == null ? "" : value)
          .replace(/&/g, "&amp;").replace(/</g, "&lt;").replace(/>/g, "&gt;")
          .replace(/"/g, "&quot;").replace(/'/g, "&#39;");
      }

      function api(method, path, body, isForm) {
        var opts = { method: method, credentials: "same-origin", headers: {} };
        if (isForm) {
          opts.body = body;
        } else if (body !== undefined) {
          opts.headers["Content-Type"] = "application/json";
          opts.body = JSON.stringify(body);
        }
        return fetch(path, opts).then(function (res) {
          if (res.status === 401) {
            window.location.reload();
            return {};
          }
          if (res.status === 204) {
            return {};
          }
          return res.json().catch(function () { return {}; });
        });
      }

      function loadView() {
        return api("GET", "/dashboard").then(function (payload) {
          if (payload.data) {
            render(payload.data);
          }
        });
      }

      function render(view) {
        document.getElementById("columns").textContent =
          "Required columns: " + view.requiredColumns.join(", ");
        var file = document.getElementById("file");
        if (view.pendingFile) {
          file.hidden = false;
          document.getElementById("file-name").textContent = view.pendingFile.name;
        } else {
          file.hidden = true;
        }
        document.getElementById("generate").disabled = !view.canGenerate;
        document.getElementById("search").value = view.searchQuery;
        renderNotices(view.notifications);
        renderProgress(view.progress);
        renderReports(view.reports);
      }

      function renderNotices(items) {
        noticeTimers.forEach(clearTimeout);
        noticeTimers = [];
        var box = document.getElementById("notices");
        box.innerHTML = "";
        (items || []).forEach(function (n) {
          var el = document.createElement("div");
          el.className = "notice " + n.kind;
          el.innerHTML = "<span>" + esc(n.message) + "</span><button type=\"button\" aria-label=\"close\">&times;</button>";
          el.querySelector("button").addEventListener("click", function () {
            api("DELETE", "/dashboard/notifications/" + n.kind).then(function () { el.remove(); });
          });
          box.appendChild(el);
          var ttl = new Date(n.expiresAt).getTime() - Date.now();
          noticeTimers.push(setTimeout(function () { el.remove(); }, Math.max(ttl, 0)));
        });
      }

      function renderProgress(progress) {
        var wrap = document.getElementById("progress-wrap");
        wrap.hidden = !progress.mounted;
        document.getElementById("progress-bar").style.width = progress.progress + "%";
        document.getElementById("progress-label").textContent = progress.label;
        if (progress.mounted && progress.state === "RUNNING") {
          if (!progressTimer) {
            progressTimer = setInterval(watchProgress, 1000);
          }
        } else if (progressTimer) {
          clearInterval(progressTimer);
          progressTimer = null;
        }
      }

      function watchProgress() {
        api("GET", "/dashboard/progress").then(function (payload) {
          if (!payload.data) {
            return;
          }
          if (payload.data.state === "COMPLETED") {
            loadView();
          } else {
            renderProgress(payload.data);
          }
        });
      }

      function renderReports(table) {
        var body = document.getElementById("rows");
        if (!table.rows.length) {
          body.innerHTML = "<tr><td class=\"empty\" colspan=\"4\">No reports found</td></tr>";
        } else {
          body.innerHTML = table.rows.map(function (row) {
            var link = row.downloadUrl
              ? "<a href=\"" + esc(row.downloadUrl) + "\">Download</a>"
              : "";
            return "<tr><td>" + esc(row.fullName) + "</td><td>" + esc(row.donorId) +
              "</td><td>" + esc(row.email) + "</td><td>" + link + "</td></tr>";
          }).join("");
        }
        renderPager(table.pagination);
      }

      function renderPager(p) {
        var pager = document.getElementById("pager");
        pager.innerHTML = "";
        var pages = Math.max(p.total_pages, 1);
        function add(label, page, current) {
          var b = document.createElement("button");
          b.type = "button";
          b.textContent = label;
          if (current) {
            b.className = "current";
          }
          b.disabled = page < 1 || page > pages;
          b.addEventListener("click", function () { setPage(page); });
          pager.appendChild(b);
        }
        add("‹", p.page - 1, false);
        for (var i = 1; i <= pages; i++) {
          add(String(i), i, i === p.page);
        }
        add("›", p.page + 1, false);
      }

      function setPage(page) {
        api("PUT", "/dashboard/reports/page", { page: page }).then(function (payload) {
          if (payload.data) {
            renderReports(payload.data);
          }
        });
      }

      function selectFile(file) {
        if (!file) {
          return;
        }
        var form = new FormData();
        form.append("file", file);
        api("POST", "/dashboard/file", form, true).then(loadView);
      }

      var dropzone = document.getElementById("dropzone");
      var input = document.getElementById("file-input");
      dropzone.addEventListener("click", function () { input.click(); });
      input.addEventListener("change", function () {
        selectFile(input.files[0]);
        input.value = "";
      });
      dropzone.addEventListener("dragover", function (e) {
        e.preventDefault();
        dropzone.classList.add("active");
      });
      dropzone.addEventListener("dragleave", function () { dropzone.classList.remove("active"); });
      dropzone.addEventListener("drop", function (e) {
        e.preventDefault();
        dropzone.classList.remove("active");
        selectFile(e.dataTransfer.files[0]);
      });

      document.getElementById("remove-file").addEventListener("click", function () {
        api("DELETE", "/dashboard/file").then(loadView);
      });
      document.getElementById("generate").addEventListener("click", function () {
        api("POST", "/dashboard/generate").then(loadView);
      });
      document.getElementById("refresh").addEventListener("click", function () {
        api("POST", "/dashboard/reports/refresh").then(function (payload) {
          if (payload.data) {
            renderReports(payload.data);
          }
        });
      });
      document.getElementById("search").addEventListener("input", function (e) {
        api("PUT", "/dashboard/reports/search", { query: e.target.value }).then(function (payload) {
          if (payload.data) {
            renderReports(payload.data);
          }
        });
      });

      loadView();
    })();
  </script>
</body>
</html>
`
