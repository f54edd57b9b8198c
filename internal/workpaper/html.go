package workpaper

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/NeoOne601/Ventro/internal/model"
)

// renderHTML produces the interactive review document. Citation spans
// carry the page and bounding box as data attributes; the host UI listens
// for CITATION_CLICK messages to jump into the source PDF.
func renderHTML(state *model.PipelineState, wp *model.Workpaper, narrative string) (string, error) {
	data := htmlData{
		SessionID:  state.SessionID.String(),
		Title:      wp.Title,
		CreatedAt:  wp.CreatedAt.Format("2006-01-02 15:04 UTC"),
		Narrative:  splitParagraphs(narrative),
		Sections:   wp.Sections,
		Citations:  wp.Citations,
		StatusText: "UNKNOWN",
	}

	if v := state.Verdict; v != nil {
		data.StatusText = strings.ReplaceAll(string(v.OverallStatus), "_", " ")
		data.StatusClass = statusClass(v.OverallStatus)
		data.Confidence = fmt.Sprintf("%.0f%%", v.Confidence*100)
		data.Recommendation = string(v.Recommendation)
		for _, m := range v.LineItemMatches {
			data.Matches = append(data.Matches, matchRow(state, m))
		}
	}
	if q := state.QuantReport; q != nil {
		data.FlagCount = len(q.Flags)
	}
	if c := state.Compliance; c != nil {
		data.RiskScore = fmt.Sprintf("%.1f", c.RiskScore)
		data.ComplianceFlags = c.Flags
		data.PolicyViolations = c.PolicyViolations
	}
	if d := state.Divergence; d != nil {
		data.HasDivergence = true
		data.DivergenceAlert = d.AlertTriggered
		data.Similarity = fmt.Sprintf("%.4f", d.Similarity)
		data.DivThreshold = fmt.Sprintf("%.2f", d.Threshold)
		data.Perturbations = strings.Join(d.Perturbations, "; ")
		if data.Perturbations == "" {
			data.Perturbations = "none"
		}
	}

	var b strings.Builder
	if err := workpaperTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

type htmlData struct {
	SessionID        string
	Title            string
	CreatedAt        string
	StatusText       string
	StatusClass      string
	Confidence       string
	Recommendation   string
	FlagCount        int
	RiskScore        string
	Narrative        []string
	Sections         []model.WorkpaperSection
	Matches          []row
	ComplianceFlags  []model.ComplianceFlag
	PolicyViolations []string
	HasDivergence    bool
	DivergenceAlert  bool
	Similarity       string
	DivThreshold     string
	Perturbations    string
	Citations        []model.Citation
}

type row struct {
	PO      string
	GRN     string
	Invoice string
	Status  string
	Class   string
	Score   string
}

func matchRow(state *model.PipelineState, m model.LineItemMatch) row {
	desc := func(kind model.DocumentKind, idx *int) string {
		if idx == nil {
			return "—"
		}
		doc, ok := state.Extracted[kind]
		if !ok || *idx >= len(doc.LineItems) {
			return "—"
		}
		return doc.LineItems[*idx].Description
	}
	return row{
		PO:      desc(model.KindPurchaseOrder, m.POIndex),
		GRN:     desc(model.KindGoodsReceipt, m.GRNIndex),
		Invoice: desc(model.KindInvoice, m.InvoiceIndex),
		Status:  strings.ReplaceAll(string(m.Status), "_", " "),
		Class:   string(m.Status),
		Score:   fmt.Sprintf("%d%%", m.DescriptionScore),
	}
}

func statusClass(s model.OverallStatus) string {
	switch s {
	case model.StatusFullMatch:
		return "status-match"
	case model.StatusPartialMatch:
		return "status-partial"
	case model.StatusMismatch:
		return "status-mismatch"
	case model.StatusDivergenceAlert:
		return "status-alert"
	default:
		return "status-exception"
	}
}

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var workpaperTmpl = template.Must(template.New("workpaper").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}} — {{.SessionID}}</title>
<style>
  body { font-family: system-ui, sans-serif; background: #0a0a1a; color: #e2e8f0; padding: 2rem; }
  .workpaper { max-width: 960px; margin: 0 auto; background: rgba(255,255,255,0.05); border-radius: 1rem;
               border: 1px solid rgba(255,255,255,0.1); padding: 2rem; }
  .header { border-bottom: 2px solid rgba(99,102,241,0.5); padding-bottom: 1rem; margin-bottom: 1.5rem; }
  .meta { color: #64748b; font-size: 0.85rem; }
  .badge { display: inline-block; padding: 0.4rem 1rem; border-radius: 2rem; font-weight: 600; }
  .status-match { background: rgba(34,197,94,0.2); color: #86efac; }
  .status-partial { background: rgba(234,179,8,0.2); color: #fde047; }
  .status-mismatch { background: rgba(239,68,68,0.2); color: #fca5a5; }
  .status-alert { background: rgba(239,68,68,0.3); color: #fecaca; }
  .status-exception { background: rgba(168,85,247,0.2); color: #d8b4fe; }
  .section { margin-bottom: 1.5rem; }
  .section h2 { font-size: 1rem; color: #a5b4fc; border-bottom: 1px solid rgba(99,102,241,0.3); padding-bottom: 0.4rem; }
  table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
  th { background: rgba(99,102,241,0.2); color: #a5b4fc; padding: 0.5rem; text-align: left; }
  td { padding: 0.5rem; border-bottom: 1px solid rgba(255,255,255,0.05); }
  tr.full_match { background: rgba(34,197,94,0.05); }
  tr.partial_match { background: rgba(234,179,8,0.05); }
  tr.mismatch { background: rgba(239,68,68,0.05); }
  .flag { padding: 0.5rem 0.8rem; margin-bottom: 0.4rem; border-left: 3px solid rgba(99,102,241,0.5);
          background: rgba(255,255,255,0.03); border-radius: 0.4rem; }
  .flag.fail { border-left-color: #ef4444; }
  .flag.warning { border-left-color: #eab308; }
  .panel { padding: 1rem; border-radius: 0.6rem; }
  .panel.alert { background: rgba(239,68,68,0.1); border: 1px solid rgba(239,68,68,0.4); }
  .panel.clear { background: rgba(34,197,94,0.1); border: 1px solid rgba(34,197,94,0.4); }
  .citation { cursor: pointer; color: #67e8f9; text-decoration: underline; padding: 1px 4px; }
  .narrative p { line-height: 1.7; color: #cbd5e1; }
</style>
</head>
<body>
<div class="workpaper">
  <div class="header">
    <h1>{{.Title}}</h1>
    <p class="meta">Session {{.SessionID}} · Generated {{.CreatedAt}}</p>
    <span class="badge {{.StatusClass}}">{{.StatusText}}</span>
    <span class="meta">Confidence {{.Confidence}} · Recommendation <strong>{{.Recommendation}}</strong></span>
  </div>

  {{range .Sections}}
  <div class="section">
    <h2>{{.Title}}</h2>
    {{if eq .Title "Procedure"}}<div class="narrative">{{range $.Narrative}}<p>{{.}}</p>{{end}}</div>
    {{else}}<pre style="white-space:pre-wrap;font-family:inherit;">{{.Content}}</pre>{{end}}
  </div>
  {{end}}

  <div class="section">
    <h2>Line Item Reconciliation</h2>
    <table>
      <thead><tr><th>Purchase Order</th><th>GRN</th><th>Invoice</th><th>Status</th><th>Similarity</th></tr></thead>
      <tbody>
      {{range .Matches}}<tr class="{{.Class}}"><td>{{.PO}}</td><td>{{.GRN}}</td><td>{{.Invoice}}</td><td>{{.Status}}</td><td>{{.Score}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </div>

  <div class="section">
    <h2>Compliance Evaluation</h2>
    {{if .ComplianceFlags}}{{range .ComplianceFlags}}<div class="flag {{.Status}}"><strong>{{.Rule}}</strong>: {{.Detail}}</div>{{end}}
    {{else}}<p class="meta">No compliance flags recorded.</p>{{end}}
    {{if .PolicyViolations}}<div class="flag fail"><strong>Policy violations</strong>: {{range .PolicyViolations}}{{.}}; {{end}}</div>{{end}}
  </div>

  {{if .HasDivergence}}
  <div class="section">
    <h2>Divergence Check</h2>
    <div class="panel {{if .DivergenceAlert}}alert{{else}}clear{{end}}">
      Cosine similarity <strong>{{.Similarity}}</strong> against threshold {{.DivThreshold}}.
      Perturbations: {{.Perturbations}}.
    </div>
  </div>
  {{end}}

  <div class="section">
    <h2>Evidence Map</h2>
    {{if .Citations}}{{range .Citations}}<span class="citation"
      data-doc-id="{{.DocumentID}}" data-page="{{.Page}}"
      data-x0="{{.BBox.X0}}" data-y0="{{.BBox.Y0}}" data-x1="{{.BBox.X1}}" data-y1="{{.BBox.Y1}}"
      onclick="window.openCitation(this)">p.{{.Page}}</span> {{end}}
    {{else}}<p class="meta">No spatial citations captured.</p>{{end}}
  </div>
</div>
<script>
window.openCitation = function(el) {
  window.parent.postMessage({
    type: 'CITATION_CLICK',
    docId: el.dataset.docId,
    page: parseInt(el.dataset.page),
    bbox: { x0: parseFloat(el.dataset.x0), y0: parseFloat(el.dataset.y0),
            x1: parseFloat(el.dataset.x1), y1: parseFloat(el.dataset.y1) }
  }, '*');
};
</script>
</body>
</html>`))
