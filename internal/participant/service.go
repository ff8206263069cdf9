package participant

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const tokenIssuer = "mensajeria"

var ErrInvalidToken = errors.New("invalid token")

// Service resolves caller identity from tokens and participants from the
// directory. Tokens are minted by the auth service with the shared secret;
// IssueToken exists for tooling and tests.
type Service struct {
	dir       Directory
	jwtSecret string
}

func NewService(dir Directory, secret string) *Service {
	return &Service{
		dir:       dir,
		jwtSecret: secret,
	}
}

func (s *Service) IssueToken(p Participant, ttl time.Duration) (string, error) {
	if !p.Tipo.Valid() || p.ID <= 0 {
		return "", errors.Errorf("cannot issue token for %s %d", p.Tipo, p.ID)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:     p.ID,
		Tipo:   p.Tipo,
		Nombre: p.Nombre,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   p.Ref().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return ss, nil
}

func (s *Service) ValidateToken(tokenString string) (*Participant, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid || !claims.Tipo.Valid() || claims.ID <= 0 {
		return nil, ErrInvalidToken
	}

	return &Participant{
		ID:     claims.ID,
		Tipo:   claims.Tipo,
		Nombre: claims.Nombre,
	}, nil
}

func (s *Service) Lookup(ctx context.Context, tipo Tipo, id int64) (*Participant, error) {
	return s.dir.GetParticipant(ctx, tipo, id)
}

func (s *Service) Directory() Directory {
	return s.dir
}
