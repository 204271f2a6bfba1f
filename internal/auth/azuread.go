package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAzureAuthorizeURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/authorize"
	defaultAzureJWKSURLFormat      = "https://login.microsoftonline.com/%s/discovery/v2.0/keys"
	defaultAzureIssuerFormat       = "https://login.microsoftonline.com/%s/v2.0"

	// jwksMaxResponseSize はJWKSレスポンスの読み取り上限（1MB）。
	jwksMaxResponseSize = 1 << 20
)

// 外部トークン検証の失敗種別。
// 構造・署名・発行者・対象者・有効期限のいずれの失敗も
// ErrInvalidExternalTokenに集約し、失敗理由を外部に漏らさない。
var (
	ErrInvalidExternalToken  = errors.New("invalid external token")
	ErrMissingRequiredClaims = errors.New("missing required claims")
)

// ExternalIdentity は検証済みの外部IDトークンから抽出したアイデンティティ。
// 検証を通過したクレームのみを保持する。
type ExternalIdentity struct {
	ObjectID   string // Azure ADのオブジェクトID（プロバイダー側サブジェクト）
	Email      string
	GivenName  string
	FamilyName string
}

// HTTPClient はJWKS取得に使うHTTPクライアントの抽象。
// テストではフェイク実装を、本番ではSSRF防止付きクライアントを注入する。
// 標準の*http.Clientはこのインターフェースを満たす。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AzureADConfig はAzure ADプロバイダーの設定。
type AzureADConfig struct {
	TenantID    string
	ClientID    string
	RedirectURL string

	// テスト用にオーバーライド可能なURL・発行者
	AuthorizeURL string
	JWKSURL      string
	Issuer       string

	// JWKS取得のタイムアウト。超過時はフェイルクローズで検証失敗とする。
	FetchTimeout time.Duration
	// JWKSキャッシュの有効期間。
	CacheTTL time.Duration
}

// AzureADVerifier はAzure ADが発行したIDトークンの検証を行う。
// 検証（署名・発行者・対象者・有効期限）→抽出の2段階パイプラインであり、
// 検証を通過していないクレームを返す経路は存在しない。
type AzureADVerifier struct {
	config AzureADConfig
	client HTTPClient

	// JWKS公開鍵のキャッシュ。kid→*rsa.PublicKey。
	// kidが見つからない場合は鍵ローテーションの可能性があるため再取得する。
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewAzureADVerifier はAzureADVerifierを生成する。
// clientがnilの場合はFetchTimeout付きの標準クライアントを使用する。
func NewAzureADVerifier(config AzureADConfig, client HTTPClient) *AzureADVerifier {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = fmt.Sprintf(defaultAzureAuthorizeURLFormat, config.TenantID)
	}
	if config.JWKSURL == "" {
		config.JWKSURL = fmt.Sprintf(defaultAzureJWKSURLFormat, config.TenantID)
	}
	if config.Issuer == "" {
		config.Issuer = fmt.Sprintf(defaultAzureIssuerFormat, config.TenantID)
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if client == nil {
		client = &http.Client{Timeout: config.FetchTimeout}
	}
	return &AzureADVerifier{
		config: config,
		client: client,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// GetLoginURL はAzure ADの認可URLを生成する。
// クライアントIDは秘密情報ではないためURLに含めてよい。
func (v *AzureADVerifier) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {v.config.ClientID},
		"redirect_uri":  {v.config.RedirectURL},
		"response_type": {"code"},
		"response_mode": {"query"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	return v.config.AuthorizeURL + "?" + params.Encode()
}

// azureClaims はAzure ADのIDトークンから読み取るクレーム。
type azureClaims struct {
	jwt.RegisteredClaims
	Oid               string `json:"oid"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

// Verify は外部発行のIDトークンを検証し、検証済みアイデンティティを返す。
//  1. トークン構造をデコードし、ヘッダーからkidを取り出す（この時点では信頼しない）
//  2. テナントのJWKSから対応する公開鍵を取得し、RS256署名・発行者・
//     対象者・有効期限を検証する。いずれかの失敗はErrInvalidExternalToken。
//  3. 検証済みトークンから必須クレーム（oid、email）を抽出する。
//     欠落時はErrMissingRequiredClaims。既定値での補完は行わない。
func (v *AzureADVerifier) Verify(ctx context.Context, rawToken string) (*ExternalIdentity, error) {
	// 鍵取得を含めた検証全体に締め切りを設け、フェイルクローズとする
	ctx, cancel := context.WithTimeout(ctx, v.config.FetchTimeout)
	defer cancel()

	claims := &azureClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims,
		func(t *jwt.Token) (interface{}, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, errors.New("token header has no kid")
			}
			return v.signingKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithAudience(v.config.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidExternalToken
	}

	// 必須クレームの抽出。oidとemailはトラスト境界上の識別子であり、
	// 欠落を既定値で埋めてはならない
	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	if claims.Oid == "" || email == "" {
		return nil, ErrMissingRequiredClaims
	}

	return &ExternalIdentity{
		ObjectID:   claims.Oid,
		Email:      email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
	}, nil
}

// signingKey はkidに対応する公開鍵をキャッシュまたはJWKSから取得する。
// キャッシュが新しくてもkidが見つからない場合は、鍵ローテーションの
// 可能性があるため再取得する。
func (v *AzureADVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < v.config.CacheTTL
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	keys, err := v.fetchJWKS(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	key, ok = keys[kid]
	if !ok {
		return nil, fmt.Errorf("key ID %q not found in JWKS", kid)
	}
	return key, nil
}

// jwksResponse はJWKSエンドポイントのレスポンス構造。
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey はJWKS内の1つの鍵。RSA鍵の再構築に必要なフィールドのみを読む。
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetchJWKS はJWKSエンドポイントから公開鍵一式を取得する。
func (v *AzureADVerifier) fetchJWKS(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JWKS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, jwksMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			// 不正な鍵はスキップし、残りの鍵の利用は妨げない
			continue
		}
		keys[k.Kid] = pubKey
	}

	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no usable RSA keys")
	}
	return keys, nil
}

// parseRSAPublicKey はbase64url表現のmodulus/exponentからRSA公開鍵を再構築する。
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid exponent value")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

var _ ExternalVerifier = (*AzureADVerifier)(nil)
