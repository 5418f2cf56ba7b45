package telephony

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Minimal TwiML for outbound call scripts. Only the verbs dialed calls use.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName  xml.Name  `xml:"Dial"`
	CallerID string    `xml:"callerId,attr,omitempty"`
	Number   string    `xml:"Number,omitempty"`
	Sip      *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// Script is the call flow executed once an outbound call is answered.
// The zero value renders an empty <Response/>.
type Script struct {
	Say      string
	BridgeTo string
	CallerID string
	Hangup   bool
}

// RenderTwiML renders s without the XML header, suitable for the Twiml call parameter.
func RenderTwiML(s Script) (string, error) {
	var r twimlResponse

	if text := strings.TrimSpace(s.Say); text != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: text})
	}
	if target := strings.TrimSpace(s.BridgeTo); target != "" {
		d := twimlDial{CallerID: s.CallerID}
		// Prefer SIP if it looks like sip:... otherwise treat as a PSTN number.
		if strings.HasPrefix(strings.ToLower(target), "sip:") {
			d.Sip = &twimlSip{URI: target}
		} else {
			d.Number = target
		}
		r.Verbs = append(r.Verbs, d)
	}
	if s.Hangup {
		r.Verbs = append(r.Verbs, twimlHangup{})
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
