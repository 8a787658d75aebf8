package web

import (
	"strconv"
	"time"

	"livereload/fingerprint"

	"github.com/dustin/go-humanize"
	"github.com/rohanthewiz/element"
)

const statusCSS = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;margin-bottom:1.5rem}
td,th{border-bottom:1px solid #ddd;padding:.3rem .8rem;text-align:left;font-size:.9rem}
code{font-size:.85rem}.muted{color:#888}`

// StatusPage shows what is being watched and who is listening.
// It carries the snippet itself, so it reloads when watched markup changes.
type StatusPage struct {
	Roots   []fingerprint.WatchRoot
	Result  fingerprint.Result
	Streams []StreamInfo
	Started time.Time

	PublicURL string
	Bootstrap Bootstrap
}

func (p StatusPage) HTML() (string, error) {
	b := element.NewBuilder()
	var snippetErr error

	b.Html().R(
		b.Head().R(
			b.Title().T("Live Reload"),
			b.Meta("charset", "UTF-8"),
			b.Style().T(statusCSS),
		),
		b.Body().R(
			b.H1().T("Live Reload"),
			b.P("class", "muted").T("Up "+humanize.Time(p.Started)+". Last scan "+p.Result.Snapshot.Time+"."),
			func() (x any) {
				element.RenderComponents(b, p)
				snippetErr = writeSnippet(b, p.PublicURL, p.Bootstrap)
				return
			}(),
		),
	)
	if snippetErr != nil {
		return "", snippetErr
	}
	return b.String(), nil
}

// Render implements the element.Component interface
func (p StatusPage) Render(b *element.Builder) (x any) {
	snap := p.Result.Snapshot

	b.H2().T("Summary")
	b.Table().R(
		b.Tr().R(b.Td().T("Files"), b.Td().T(strconv.Itoa(len(p.Result.Files)))),
		b.Tr().R(b.Td().T("Size"), b.Td().T(humanize.Bytes(uint64(p.Result.Bytes)))),
		b.Tr().R(b.Td().T("Stylesheets"), b.Td().T(strconv.Itoa(len(snap.CSSHash)))),
		b.Tr().R(b.Td().T("Scripts"), b.Td().T(strconv.Itoa(len(snap.JSHash)))),
		b.Tr().R(b.Td().T("Unmapped"), b.Td().T(strconv.Itoa(p.Result.Dropped))),
		b.Tr().R(b.Td().T("Reload hash"), b.Td().R(b.Code().T(orDash(snap.ReloadHash)))),
	)

	b.H2().T("Watch roots")
	b.Table().R(
		b.Tr().R(b.Th().T("Class"), b.Th().T("Directory")),
		element.ForEach(p.Roots, func(root fingerprint.WatchRoot) {
			b.Tr().R(b.Td().T(root.Class.String()), b.Td().R(b.Code().T(root.Path)))
		}),
	)

	b.H2().T("Open streams (" + strconv.Itoa(len(p.Streams)) + ")")
	b.Table().R(
		b.Tr().R(b.Th().T("Stream"), b.Th().T("Opened"), b.Th().T("Agent")),
		element.ForEach(p.Streams, func(s StreamInfo) {
			b.Tr().R(
				b.Td().R(b.Code().T(s.ID)),
				b.Td().T(humanize.Time(s.Opened)),
				b.Td("class", "muted").T(s.Agent),
			)
		}),
	)
	return
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
