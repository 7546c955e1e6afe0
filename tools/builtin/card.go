package builtin

import (
	"bytes"
	"context"
	"errors"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/notify"
	"github.com/tailored-agentic-units/chainspeak/tools"
)

const (
	cardWidth   = 640
	cardHeight  = 360
	cardPadding = 32
	cardRadius  = 18
)

var (
	cardBackground = color.RGBA{R: 0x1e, G: 0x1f, B: 0x2b, A: 0xff}
	cardPanel      = color.RGBA{R: 0x2c, G: 0x2e, B: 0x3f, A: 0xff}
	cardAccent     = color.RGBA{R: 0x7c, G: 0xc4, B: 0xff, A: 0xff}
	cardText       = color.RGBA{R: 0xe8, G: 0xe8, B: 0xf0, A: 0xff}
)

// RenderCard draws a titled text card and encodes it as PNG.
// The default bitmap face is used so no font files are needed.
func RenderCard(title, body string) ([]byte, error) {
	dc := gg.NewContext(cardWidth, cardHeight)

	dc.SetColor(cardBackground)
	dc.Clear()

	dc.SetColor(cardPanel)
	dc.DrawRoundedRectangle(cardPadding/2, cardPadding/2, cardWidth-cardPadding, cardHeight-cardPadding, cardRadius)
	dc.Fill()

	dc.SetColor(cardAccent)
	dc.DrawRectangle(cardPadding, cardPadding+24, cardWidth-2*cardPadding, 2)
	dc.Fill()
	dc.DrawString(title, cardPadding, cardPadding+12)

	dc.SetColor(cardText)
	dc.DrawStringWrapped(body, cardPadding, cardPadding+44, 0, 0, cardWidth-2*cardPadding, 1.5, gg.AlignLeft)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SendTextCard renders a PNG card and delivers it to the caller.
func SendTextCard() tools.Unit {
	return tools.Unit{
		Tool: &protocol.Tool{
			Name:        "send_text_card",
			Description: "Renders a short summary as an image card and sends it to the user.",
			Parameters: protocol.ObjectSchema(map[string]any{
				"title": protocol.StringProperty("Card heading."),
				"body":  protocol.StringProperty("Card text."),
			}, "title", "body"),
		},
		Handler: func(ctx context.Context, call tools.Call) (tools.Result, error) {
			var args struct {
				Title string `json:"title"`
				Body  string `json:"body"`
			}
			if err := call.Bind(&args); err != nil {
				return tools.Result{}, err
			}
			if call.Notifier == nil || call.Recipient == "" {
				return tools.Result{}, errors.New("no recipient to deliver the card to")
			}

			png, err := RenderCard(args.Title, args.Body)
			if err != nil {
				return tools.Result{}, err
			}

			media := notify.Media{Data: png, MimeType: "image/png", Filename: "card.png", Caption: args.Title}
			if err := call.Notifier.SendMedia(ctx, call.Recipient, media); err != nil {
				return tools.Result{}, err
			}
			return tools.OK(map[string]any{"sent": true, "bytes": len(png)}), nil
		},
	}
}
