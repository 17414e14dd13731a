package deviceconf

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/nvrhub/hieasy/internal/protocol"
)

// Node is a generic attribute/child tree for one reply element. The
// firmware's config schemas vary per MainCmd and firmware revision, so no
// per-type structs are attempted; callers index into the tree.
type Node struct {
	Attrs    map[string]string  `json:"attrs,omitempty"`
	Children map[string][]*Node `json:"children,omitempty"`
	Text     string             `json:"text,omitempty"`
}

// Record is one parsed GetCfgReply.
type Record struct {
	ConfigLen int              `json:"config_len"`
	Version   string           `json:"version"`
	CmdReply  string           `json:"cmd_reply"`
	MainCmd   int              `json:"main_cmd"`
	AssistCmd int              `json:"assist_cmd"`
	Data      map[string]*Node `json:"data"`
	Err       string           `json:"error,omitempty"`
	Type      *Type            `json:"type,omitempty"`
}

// xmlElem mirrors the raw element tree during decoding.
type xmlElem struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlElem  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (e *xmlElem) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (e *xmlElem) find(name string) *xmlElem {
	if e.XMLName.Local == name {
		return e
	}
	for i := range e.Children {
		if found := e.Children[i].find(name); found != nil {
			return found
		}
	}
	return nil
}

func (e *xmlElem) toNode() *Node {
	n := &Node{}
	if len(e.Attrs) > 0 {
		n.Attrs = make(map[string]string, len(e.Attrs))
		for _, a := range e.Attrs {
			n.Attrs[a.Name.Local] = a.Value
		}
	}
	for i := range e.Children {
		child := &e.Children[i]
		if n.Children == nil {
			n.Children = make(map[string][]*Node)
		}
		n.Children[child.XMLName.Local] = append(n.Children[child.XMLName.Local], child.toNode())
	}
	if text := strings.TrimSpace(e.Text); text != "" {
		n.Text = text
	}
	return n
}

// ParseReply parses a GetCfgReply body into a Record. The body arrives
// already transcoded to UTF-8; the declared GB2312 charset is accepted and
// passed through rather than decoded a second time.
func ParseReply(body string) (*Record, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var root xmlElem
	if err := dec.Decode(&root); err != nil {
		return nil, &protocol.ProtocolError{Op: "config parse", Detail: protocol.Snippet(body)}
	}

	reply := root.find("GetCfgReply")
	if reply == nil {
		return nil, &protocol.ProtocolError{Op: "config parse", Detail: "no GetCfgReply in " + protocol.Snippet(body)}
	}

	rec := &Record{
		Version:   reply.attr("Version"),
		CmdReply:  reply.attr("CmdReply"),
		AssistCmd: -1,
		Data:      map[string]*Node{},
	}
	rec.ConfigLen, _ = strconv.Atoi(reply.attr("ConfigLen"))

	if rec.CmdReply != "0" {
		rec.Err = "device returned error " + rec.CmdReply
		return rec, nil
	}

	for i := range reply.Children {
		child := &reply.Children[i]
		if child.XMLName.Local == "CfgInfo" {
			rec.MainCmd, _ = strconv.Atoi(child.attr("MainCommand"))
			if v := child.attr("AssistCommand"); v != "" {
				rec.AssistCmd, _ = strconv.Atoi(v)
			}
			continue
		}
		rec.Data[child.XMLName.Local] = child.toNode()
	}
	return rec, nil
}
