package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var invitationTmpl = template.Must(template.New("invitation").Parse(
	`<p>moaiに{{.Role}}として招待されました。</p>
<p><a href="{{.Link}}">こちらのリンク</a>から登録してください。</p>
<p>このリンクの有効期限は{{.Expires}}です。</p>
`))

// InvitationData は招待メールの差し込み値。
type InvitationData struct {
	Role    string
	Link    string
	Expires string
}

// InvitationMessage は招待メールを組み立てる。
func InvitationMessage(to string, data InvitationData) (Message, error) {
	var buf bytes.Buffer
	if err := invitationTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render invitation email: %w", err)
	}
	return Message{
		To:      []string{to},
		Subject: "moaiへの招待",
		HTML:    buf.String(),
	}, nil
}
