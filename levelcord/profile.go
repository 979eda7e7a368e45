package levelcord

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	profileCardWidth  = 640
	profileCardHeight = 240
	profileAvatarSize = 160
)

var (
	profileBackground = color.NRGBA{R: 0x23, G: 0x27, B: 0x2A, A: 0xFF}
	profileAccent     = color.NRGBA{R: 0x5B, G: 0x65, B: 0xF2, A: 0xFF}
	profileBarTrack   = color.NRGBA{R: 0x3A, G: 0x3F, B: 0x45, A: 0xFF}
	profileTextDim    = color.NRGBA{R: 0xB5, G: 0xBA, B: 0xC1, A: 0xFF}
)

// ProfileCardData carries everything the renderer needs, so rendering
// stays a pure function of its inputs.
type ProfileCardData struct {
	Username   string
	TextXP     int64
	VoiceXP    int64
	TextLevel  int
	VoiceLevel int
	Messages   int64
	VoiceTime  int64
	Rank       int
	Avatar     image.Image
}

// renderProfileCard gathers a user's totals and draws their card,
// returning the encoded PNG.
func (lc *LevelCord) renderProfileCard(
	ctx context.Context,
	interaction *discordgo.Interaction,
	userID string,
	username string,
	data discordgo.ApplicationCommandInteractionData,
) (io.Reader, error) {
	guildID := interaction.GuildID

	textXP, err := lc.ledger.XP(ctx, userID, guildID, ModeText)
	if err != nil {
		return nil, err
	}
	voiceXP, err := lc.ledger.XP(ctx, userID, guildID, ModeVoice)
	if err != nil {
		return nil, err
	}
	textLevel, err := lc.ledger.Level(ctx, userID, guildID, ModeText)
	if err != nil {
		return nil, err
	}
	voiceLevel, err := lc.ledger.Level(ctx, userID, guildID, ModeVoice)
	if err != nil {
		return nil, err
	}
	messages, err := lc.ledger.Messages(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	voiceTime, err := lc.ledger.VoiceTime(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	rank, err := lc.ledger.Rank(ctx, userID, guildID, "text")
	if err != nil {
		return nil, err
	}

	card := ProfileCardData{
		Username:   username,
		TextXP:     textXP,
		VoiceXP:    voiceXP,
		TextLevel:  textLevel,
		VoiceLevel: voiceLevel,
		Messages:   messages,
		VoiceTime:  voiceTime,
		Rank:       rank,
	}
	// a missing avatar degrades to the accent-colored placeholder
	card.Avatar = lc.fetchAvatar(ctx, avatarURL(interaction, data, userID))

	buf, err := drawProfileCard(card, lc.config.Discord.ProfileFont)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// avatarURL resolves the target user's avatar from the interaction
// payload, so no extra API call is needed.
func avatarURL(
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
	userID string,
) string {
	if data.Resolved != nil {
		if u, ok := data.Resolved.Users[userID]; ok && u != nil {
			return u.AvatarURL("256")
		}
	}
	if interaction.Member != nil && interaction.Member.User != nil &&
		interaction.Member.User.ID == userID {
		return interaction.Member.User.AvatarURL("256")
	}
	if interaction.User != nil && interaction.User.ID == userID {
		return interaction.User.AvatarURL("256")
	}
	return ""
}

func (lc *LevelCord) fetchAvatar(ctx context.Context, url string) image.Image {
	if url == "" {
		return nil
	}
	client := lc.config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		lc.logger.WarnContext(ctx, "error fetching avatar", "url", url)
		return nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil
	}
	return img
}

// drawProfileCard renders the card image. fontPath optionally overrides
// the embedded Go fonts with a TTF from disk.
func drawProfileCard(card ProfileCardData, fontPath string) (*bytes.Buffer, error) {
	titleFace, err := profileFontFace(fontPath, gobold.TTF, 28)
	if err != nil {
		return nil, err
	}
	bodyFace, err := profileFontFace(fontPath, goregular.TTF, 18)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(profileCardWidth, profileCardHeight)
	dc.SetColor(profileBackground)
	dc.Clear()

	drawAvatar(dc, card.Avatar)

	textX := float64(profileAvatarSize) + 80
	dc.SetFontFace(titleFace)
	dc.SetColor(color.White)
	dc.DrawString(truncate(card.Username, 24), textX, 60)

	dc.SetFontFace(bodyFace)
	dc.SetColor(profileTextDim)
	dc.DrawString(
		fmt.Sprintf(
			"Level %d text / %d voice   -   rank %s",
			card.TextLevel, card.VoiceLevel, ordinal(card.Rank),
		),
		textX, 92,
	)
	dc.DrawString(
		fmt.Sprintf(
			"%d messages   -   %d voice minutes",
			card.Messages, card.VoiceTime,
		),
		textX, 120,
	)

	drawProgressBar(
		dc, textX, 150, "text", card.TextXP, card.TextLevel,
	)
	drawProgressBar(
		dc, textX, 195, "voice", card.VoiceXP, card.VoiceLevel,
	)

	var buf bytes.Buffer
	if err = dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("error encoding profile card: %w", err)
	}
	return &buf, nil
}

// drawAvatar draws the avatar clipped to a circle, or a flat disc when
// none was available.
func drawAvatar(dc *gg.Context, avatar image.Image) {
	cx := 40 + float64(profileAvatarSize)/2
	cy := float64(profileCardHeight) / 2

	dc.Push()
	dc.DrawCircle(cx, cy, float64(profileAvatarSize)/2)
	dc.Clip()
	if avatar == nil {
		dc.SetColor(profileAccent)
		dc.DrawRectangle(
			cx-float64(profileAvatarSize)/2,
			cy-float64(profileAvatarSize)/2,
			float64(profileAvatarSize),
			float64(profileAvatarSize),
		)
		dc.Fill()
	} else {
		bounds := avatar.Bounds()
		scale := float64(profileAvatarSize) / float64(bounds.Dx())
		dc.Push()
		dc.Translate(cx-float64(profileAvatarSize)/2, cy-float64(profileAvatarSize)/2)
		dc.Scale(scale, scale)
		dc.DrawImage(avatar, 0, 0)
		dc.Pop()
	}
	dc.ResetClip()
	dc.Pop()
}

// drawProgressBar renders progress through the current level toward
// the next threshold.
func drawProgressBar(
	dc *gg.Context,
	x float64,
	y float64,
	label string,
	xp int64,
	level int,
) {
	const barWidth = 360.0
	const barHeight = 14.0

	floor := levelThreshold(level)
	span := levelThreshold(level+1) - floor
	progress := float64(xp-floor) / float64(span)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	dc.SetColor(profileBarTrack)
	dc.DrawRoundedRectangle(x, y, barWidth, barHeight, barHeight/2)
	dc.Fill()
	if progress > 0 {
		dc.SetColor(profileAccent)
		dc.DrawRoundedRectangle(x, y, barWidth*progress, barHeight, barHeight/2)
		dc.Fill()
	}

	dc.SetColor(profileTextDim)
	dc.DrawString(
		fmt.Sprintf("%s %d/%d", label, xp-floor, span),
		x+barWidth+12, y+barHeight-1,
	)
}

// profileFontFace loads the override TTF if configured, else uses the
// embedded fallback bytes.
func profileFontFace(
	fontPath string,
	fallback []byte,
	size float64,
) (font.Face, error) {
	fontBytes := fallback
	if fontPath != "" {
		data, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("error reading font file: %w", err)
		}
		fontBytes = data
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("error parsing font: %w", err)
	}
	return truetype.NewFace(
		parsedFont, &truetype.Options{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		},
	), nil
}
