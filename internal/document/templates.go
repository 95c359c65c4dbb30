package document

const invoiceHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.QueueNumber}}</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid #ccc; padding: 4px; text-align: left; }
td.num, th.num { text-align: right; }
.warning { color: #a60; }
@media print { .noprint { display: none; } }
</style>
</head>
<body>
<h1>{{.ClinicName}}</h1>
<h2>{{.Title}}</h2>
<p>
Patient: {{.PatientName}} ({{.PatientCode}})<br>
{{if .QueueNumber}}Queue no: {{.QueueNumber}}<br>{{end}}
{{if .Tier}}Price tier: {{.Tier}}<br>{{end}}
Issued: {{.IssuedAt}}
</p>
{{if .TierWarning}}<p class="warning">{{.TierWarning}}</p>{{end}}
<table>
<tr><th>Item</th><th class="num">Qty</th><th class="num">Rate</th><th class="num">Amount</th></tr>
{{range .Lines}}<tr><td>{{.Name}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.Rate}}</td><td class="num">{{.Total}}</td></tr>
{{end}}</table>
{{if .Payments}}
<h3>Payments</h3>
<table>
<tr><th>Date</th><th>Method</th><th>Reference</th><th class="num">Amount</th></tr>
{{range .Payments}}<tr><td>{{.PaidAt}}</td><td>{{.Method}}</td><td>{{.Reference}}</td><td class="num">{{.Amount}}</td></tr>
{{end}}</table>
{{end}}
<p>
Total: RM {{.Total}}<br>
Paid: RM {{.Paid}}<br>
<strong>Amount due: RM {{.Due}}</strong>
</p>
<button class="noprint" onclick="window.print()">Print</button>
</body>
</html>
`

const labelHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Label {{.ItemName}}</title>
<style>
body { font-family: sans-serif; font-size: 11px; width: 80mm; }
@media print { .noprint { display: none; } }
</style>
</head>
<body>
<strong>{{.ClinicName}}</strong><br>
{{.PatientName}} ({{.PatientCode}})<br>
{{.Date}}
<h3>{{.ItemName}} x {{.Quantity}}</h3>
{{if .Dosage}}Dose: {{.Dosage}}<br>{{end}}
{{if .Frequency}}Frequency: {{.Frequency}}<br>{{end}}
{{if .Duration}}Duration: {{.Duration}}<br>{{end}}
{{if .Instructions}}<p>{{.Instructions}}</p>{{end}}
<button class="noprint" onclick="window.print()">Print</button>
</body>
</html>
`
