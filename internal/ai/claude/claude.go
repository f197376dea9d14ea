package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/ayoubbns/vinscan/internal/ai"
	"github.com/ayoubbns/vinscan/internal/domain"
)

// maxTokens covers a structured extraction response (~10 short fields) with
// headroom for verbose models. Reports are free text and get more room.
const (
	maxTokens       = 1024
	reportMaxTokens = 2048
)

const systemPrompt = `Tu es KHABIR, expert automobile au Maroc. Tu connais le marché local, ` +
	`la réglementation marocaine et la norme ISO 3779 sur les numéros de châssis (VIN).`

const criticalPrompt = `Tu es KHABIR, expert en extraction documentaire automobile au Maroc.
Ta mission : extraire le VIN (numéro de châssis) et les informations clés de l'image.

RÈGLES CRITIQUES (ISO 3779) :
1. PRIORITÉ ABSOLUE : trouver le VIN de 17 caractères (0-9 et A-Z sauf I, O, Q).
2. SI L'IMAGE EST UNE CARTE GRISE : extraire directement marque, modèle, carburant et immatriculation du texte imprimé.
3. SI L'IMAGE MONTRE UN VIN SEUL : corriger les erreurs OCR courantes (I=1, O=0, B=8, S=5, Z=2). Le VIN prime sur tout le reste.

DÉDUCTION À PARTIR DU VIN :
- Code WMI (3 premiers caractères) : constructeur et pays.
- Section VDS (caractères 4 à 9) : modèle et motorisation probables.
- Caractère 10 : année de fabrication.

Réponds UNIQUEMENT avec un objet JSON, sans texte autour, avec les clés :
"vin", "brand", "model", "yearOfManufacture", "licensePlate", "registrationYear", "deductionReasoning".
Laisse vide ("") toute clé que tu ne peux pas déterminer.`

const carteGriseHint = "\n\nNOTE : l'image fournie est une carte grise marocaine."

const refinePromptFmt = `Tu es KHABIR, expert automobile. La marque du véhicule est déjà connue : %s.
Analyse l'image en détail pour compléter la fiche du véhicule.

Réponds UNIQUEMENT avec un objet JSON, sans texte autour, avec les clés :
"model", "motorization", "fuelType", "color", "yearOfManufacture", "registrationYear", "licensePlate".
Pour "fuelType", choisis parmi : Essence, Diesel, Hybride, Électrique, N/A.
Laisse vide ("") toute clé que tu ne peux pas déterminer. N'invente rien.`

const vinPromptFmt = `Tu es KHABIR, expert automobile. Décode ce numéro de châssis (VIN) selon la norme ISO 3779 : %s

- Code WMI (3 premiers caractères) : constructeur et pays.
- Section VDS (caractères 4 à 9) : modèle et motorisation probables.
- Caractère 10 : année de fabrication.

Réponds UNIQUEMENT avec un objet JSON, sans texte autour, avec les clés :
"vin", "brand", "model", "motorization", "fuelType", "yearOfManufacture", "deductionReasoning".
Pour "fuelType", choisis parmi : Essence, Diesel, Hybride, Électrique, N/A.
Laisse vide ("") toute clé que tu ne peux pas déterminer.`

const reportPromptFmt = `Tu es KHABIR, expert automobile agréé au Maroc. Rédige un rapport d'expertise
technique complet et structuré (en français) pour le véhicule dont le VIN est : %s

Structure attendue :
1. IDENTIFICATION : décomposition du VIN (WMI : %s, VDS : %s, VIS : %s).
2. CARACTÉRISTIQUES TECHNIQUES probables (motorisation, transmission, équipements).
3. POINTS DE VIGILANCE connus pour ce modèle (pannes fréquentes, rappels).
4. AVIS DE L'EXPERT pour le marché marocain de l'occasion.

Rédige en texte clair, sans JSON.`

const valuePromptFmt = `Tu es KHABIR, expert en cotation automobile sur le marché marocain de l'occasion.
Estime la valeur marchande en dirhams (MAD) du véhicule suivant :
- Marque : %s
- Modèle : %s
- Motorisation : %s
- Carburant : %s
- Année de fabrication : %s

Réponds UNIQUEMENT avec un objet JSON, sans texte autour, avec les clés :
"marketValueMin" (entier, MAD), "marketValueMax" (entier, MAD), "marketValueJustification" (texte court).`

// Analyzer implements ai.VehicleIntel against the Anthropic Messages API.
type Analyzer struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnalyzer(apiKey, model string, opts ...anthropic.ClientOption) *Analyzer {
	return &Analyzer{
		client: anthropic.NewClient(apiKey, opts...),
		model:  anthropic.Model(model),
	}
}

func (a *Analyzer) CriticalScan(ctx context.Context, image []byte, mimeType string, mode domain.ScanMode) (*ai.Extraction, error) {
	prompt := criticalPrompt
	if mode == domain.ScanModeCarteGrise {
		prompt += carteGriseHint
	}

	text, err := a.complete(ctx, imageMessage(image, mimeType, prompt), "", maxTokens)
	if err != nil {
		return nil, err
	}
	ext, err := ai.DecodeExtraction(text)
	if err != nil {
		return nil, err
	}
	ext.VIN = ai.NormalizeVIN(ext.VIN)
	ext.Brand = strings.ToUpper(strings.TrimSpace(ext.Brand))
	ext.Model = strings.ToUpper(strings.TrimSpace(ext.Model))
	return ext, nil
}

func (a *Analyzer) RefineDetails(ctx context.Context, image []byte, mimeType string, brand string) (*ai.Extraction, error) {
	prompt := fmt.Sprintf(refinePromptFmt, brand)

	text, err := a.complete(ctx, imageMessage(image, mimeType, prompt), "", maxTokens)
	if err != nil {
		return nil, err
	}
	return ai.DecodeExtraction(text)
}

func (a *Analyzer) DecodeVIN(ctx context.Context, vin string) (*ai.Extraction, error) {
	prompt := fmt.Sprintf(vinPromptFmt, vin)

	text, err := a.complete(ctx, []anthropic.Message{anthropic.NewUserTextMessage(prompt)}, "", maxTokens)
	if err != nil {
		return nil, err
	}
	ext, err := ai.DecodeExtraction(text)
	if err != nil {
		return nil, err
	}
	ext.VIN = ai.NormalizeVIN(ext.VIN)
	ext.Brand = strings.ToUpper(strings.TrimSpace(ext.Brand))
	ext.Model = strings.ToUpper(strings.TrimSpace(ext.Model))
	return ext, nil
}

func (a *Analyzer) ExpertiseReport(ctx context.Context, vin string) (string, error) {
	prompt := fmt.Sprintf(reportPromptFmt, vin, vinSeg(vin, 0, 3), vinSeg(vin, 3, 9), vinSeg(vin, 9, 17))
	return a.complete(ctx, []anthropic.Message{anthropic.NewUserTextMessage(prompt)}, "", reportMaxTokens)
}

func (a *Analyzer) EstimateValue(ctx context.Context, analysis domain.VehicleAnalysis) (*ai.ValueEstimate, error) {
	prompt := fmt.Sprintf(valuePromptFmt,
		analysis.Brand, analysis.Model, analysis.Motorization,
		string(analysis.FuelType), analysis.YearOfManufacture)

	text, err := a.complete(ctx, []anthropic.Message{anthropic.NewUserTextMessage(prompt)}, "", maxTokens)
	if err != nil {
		return nil, err
	}
	return ai.DecodeValueEstimate(text)
}

func (a *Analyzer) Chat(ctx context.Context, history []domain.ChatMessage, message string) (string, error) {
	msgs := make([]anthropic.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == domain.ChatRoleUser {
			msgs = append(msgs, anthropic.NewUserTextMessage(m.Text))
		} else {
			msgs = append(msgs, anthropic.NewAssistantTextMessage(m.Text))
		}
	}
	msgs = append(msgs, anthropic.NewUserTextMessage(message))

	return a.complete(ctx, msgs, systemPrompt, maxTokens)
}

func (a *Analyzer) complete(ctx context.Context, messages []anthropic.Message, system string, tokens int) (string, error) {
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     a.model,
		System:    system,
		MaxTokens: tokens,
		Messages:  messages,
	})
	if err != nil {
		return "", classify(err)
	}

	for _, block := range resp.Content {
		if text := block.GetText(); text != "" {
			return text, nil
		}
	}
	return "", errors.New("empty response from model")
}

func imageMessage(image []byte, mimeType, prompt string) []anthropic.Message {
	return []anthropic.Message{{
		Role: anthropic.RoleUser,
		Content: []anthropic.MessageContent{
			anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64, normaliseMIME(mimeType), image)),
			anthropic.NewTextMessageContent(prompt),
		},
	}}
}

// normaliseMIME maps detected MIME types to the values the Messages API
// accepts: jpeg, png, gif and webp. Anything else is coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}

// classify maps Anthropic API failures onto the buckets callers act on.
func classify(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthenticationErr():
			return fmt.Errorf("%w: %s", ai.ErrInvalidCredentials, apiErr.Message)
		case apiErr.IsRateLimitErr():
			return fmt.Errorf("%w: %s", ai.ErrRateLimited, apiErr.Message)
		}
	}
	return err
}

// vinSeg slices a VIN segment, tolerating short or malformed VINs.
func vinSeg(vin string, from, to int) string {
	if from >= len(vin) {
		return ""
	}
	if to > len(vin) {
		to = len(vin)
	}
	return vin[from:to]
}
