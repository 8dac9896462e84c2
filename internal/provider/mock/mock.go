package mock

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sync"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

const (
	embeddingDimension = 512
	// minContrast abaixo disso o frame é considerado vazio (sem rosto)
	minContrast = 16
	// minSide é o menor lado de imagem em que o mock desenha um rosto
	minSide = 32
	// sampleStep é o passo da amostragem de contraste
	sampleStep = 4
)

// Provider implementa provider.FaceModel para testes e desenvolvimento.
// Todo frame com conteúdo recebe um rosto frontal sintético, com olhos
// abertos e expressões naturais, proporcional ao tamanho da imagem.
type Provider struct {
	mu     sync.Mutex
	script [][]domain.DetectionResult
	calls  int
}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// NewScripted devolve os resultados na ordem dada, um por chamada de Detect,
// repetindo o último quando a lista acaba. Útil para simular sequências.
func NewScripted(frames ...[]domain.DetectionResult) *Provider {
	return &Provider{script: frames}
}

// Load aceita qualquer modelo, o mock não tem pesos para carregar
func (p *Provider) Load(ctx context.Context, name string) error {
	return ctx.Err()
}

// Detect simula detecção de faces
func (p *Provider) Detect(ctx context.Context, img imaging.Source, _ domain.DetectOptions) ([]domain.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if next, ok := p.next(); ok {
		return next, nil
	}

	w, h := img.Width(), img.Height()
	if min(w, h) < minSide || contrast(img) < minContrast {
		return []domain.DetectionResult{}, nil
	}

	data, err := img.Encoded()
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	face := SyntheticFace(float64(w), float64(h))
	face.Descriptor = generateEmbedding(data)
	return []domain.DetectionResult{face}, nil
}

func (p *Provider) next() ([]domain.DetectionResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.script) == 0 {
		return nil, false
	}
	i := min(p.calls, len(p.script)-1)
	p.calls++
	return p.script[i], true
}

// SyntheticFace gera um rosto frontal centrado ocupando 60% do menor lado.
// Os pontos são simétricos em torno do eixo vertical do rosto e o nariz fica
// na altura neutra, então yaw, pitch e roll estimados são zero.
func SyntheticFace(w, h float64) domain.DetectionResult {
	s := 0.6 * math.Min(w, h)
	x0 := (w - s) / 2
	y0 := (h - s) / 2
	cx := x0 + s/2

	at := func(dx, dy float64) domain.Point {
		return domain.Point{X: cx + dx*s, Y: y0 + dy*s}
	}
	eye := func(side float64) []domain.Point {
		c := 0.18 * side
		return []domain.Point{
			at(c-0.08*side, 0.38),
			at(c-0.03*side, 0.34),
			at(c+0.03*side, 0.34),
			at(c+0.08*side, 0.38),
			at(c+0.03*side, 0.42),
			at(c-0.03*side, 0.42),
		}
	}

	return domain.DetectionResult{
		Box:        domain.BoundingBox{X: x0, Y: y0, Width: s, Height: s},
		Confidence: 0.99,
		Landmarks: domain.Landmarks{
			LeftEye:  eye(-1),
			RightEye: eye(1),
			Nose:     []domain.Point{at(0, 0.45), at(0, 0.524), at(0, 0.598)},
			Mouth:    []domain.Point{at(-0.12, 0.75), at(-0.05, 0.72), at(0.05, 0.72), at(0.12, 0.75)},
		},
		Expressions: map[string]float64{
			"neutral":   0.7,
			"happy":     0.2,
			"surprised": 0.1,
		},
		Age:    30,
		Gender: "female",
	}
}

// contrast amostra a luminância e devolve max-min
func contrast(img imaging.Source) int {
	lo, hi := 255, 0
	for y := 0; y < img.Height(); y += sampleStep {
		for x := 0; x < img.Width(); x += sampleStep {
			v := int(img.Luma(x, y))
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	return hi - lo
}

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(image []byte) []float64 {
	hash := sha256.Sum256(image)
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var _ provider.FaceModel = (*Provider)(nil)
