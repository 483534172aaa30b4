package web

// indexHTML is a thin view: every conversion happens server-side over /ws
const indexHTML = `<!DOCTYPE html>
<html lang="sv">
<head>
<meta charset="utf-8">
<title>Valutaomvandlare</title>
<style>
body { font-family: sans-serif; max-width: 28rem; margin: 3rem auto; }
.row { display: flex; gap: .5rem; align-items: center; margin: .5rem 0; }
.row img { width: 24px; height: 24px; }
#status { color: #b00; }
</style>
</head>
<body>
<div class="row"><img id="fromFlag" alt=""><select id="fromDropdown"></select><button id="fromFav" title="Favorit">&#9734;</button><input id="fromCurrencyInp" type="number" min="0" step="any"></div>
<div class="row"><img id="toFlag" alt=""><select id="toDropdown"></select><button id="toFav" title="Favorit">&#9734;</button><input id="toCurrencyInp" type="number" min="0" step="any"></div>
<p id="status"></p>
<p id="updateTime"></p>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
const $ = (id) => document.getElementById(id);
const send = (type, value) => ws.send(JSON.stringify({ type, value: String(value) }));

function fill(select, codes, favorites, selected) {
  select.innerHTML = "";
  for (const c of codes) select.add(new Option(favorites.includes(c) ? "\u2605 " + c : c, c));
  select.value = selected;
}

function star(button, code, favorites) {
  button.innerHTML = favorites.includes(code) ? "&#9733;" : "&#9734;";
}

ws.onmessage = (ev) => {
  const { state, error } = JSON.parse(ev.data);
  const favorites = state.favorites || [];
  fill($("fromDropdown"), state.currencies, favorites, state.from);
  fill($("toDropdown"), state.currencies, favorites, state.to);
  star($("fromFav"), state.from, favorites);
  star($("toFav"), state.to, favorites);
  if (document.activeElement !== $("fromCurrencyInp")) $("fromCurrencyInp").value = state.from_amount || "";
  if (document.activeElement !== $("toCurrencyInp")) $("toCurrencyInp").value = state.to_amount || "";
  if (state.from_flag) $("fromFlag").src = state.from_flag;
  if (state.to_flag) $("toFlag").src = state.to_flag;
  $("status").textContent = state.status || error || "";
  $("updateTime").textContent = state.last_updated;
};

$("fromDropdown").onchange = (e) => send("select_from", e.target.value);
$("toDropdown").onchange = (e) => send("select_to", e.target.value);
$("fromCurrencyInp").oninput = (e) => send("input_from", e.target.value);
$("toCurrencyInp").oninput = (e) => send("input_to", e.target.value);
$("fromFav").onclick = () => send("toggle_favorite", $("fromDropdown").value);
$("toFav").onclick = () => send("toggle_favorite", $("toDropdown").value);
</script>
</body>
</html>
`
