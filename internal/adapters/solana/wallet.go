// Package solana — тонкий кошелёк казначейства поверх JSON-RPC узла и
// своп-агрегатора Jupiter. Транзакцию целиком собирает агрегатор; здесь
// только подпись ed25519 и отправка. Покупка и сжигание совмещены: токены
// свопа уходят сразу на счёт-инсинератор.
package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

const (
	jupiterBase    = "https://quote-api.jup.ag/v6"
	lamportsPerSOL = 1_000_000_000
	solMint        = "So11111111111111111111111111111111111111112"
	// incinerator — канонический адрес сжигания.
	incinerator = "1nc1nerator11111111111111111111111111111111"
)

// Wallet — казначейский кошелёк.
type Wallet struct {
	http      *http.Client
	rpcURL    string
	swapBase  string
	tokenMint string
	key       ed25519.PrivateKey
	pubkey    string
}

var _ domain.Wallet = (*Wallet)(nil)

// NewWallet создаёт кошелёк из base58-ключа (64 байта: seed + pubkey).
func NewWallet(rpcURL, tokenMint, privateKeyBase58 string, timeout time.Duration) (*Wallet, error) {
	raw, err := base58Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("solana: разбор приватного ключа: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("solana: неверная длина ключа: %d", len(raw))
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	key := ed25519.PrivateKey(raw)
	return &Wallet{
		http:      &http.Client{Timeout: timeout},
		rpcURL:    rpcURL,
		swapBase:  jupiterBase,
		tokenMint: tokenMint,
		key:       key,
		pubkey:    base58Encode(key.Public().(ed25519.PublicKey)),
	}, nil
}

// Address возвращает публичный адрес кошелька.
func (w *Wallet) Address() string { return w.pubkey }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (w *Wallet) rpcCall(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("solana: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("solana: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := w.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("solana", method, "rpc", start, err)
		return fmt.Errorf("solana: do request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("solana", method, "rpc", start, err)
		return fmt.Errorf("solana: read response: %w", err)
	}
	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("solana", method, "rpc", start, err)
		return fmt.Errorf("solana: decode response: %w", err)
	}
	if parsed.Error != nil {
		err = fmt.Errorf("solana: rpc: %s", parsed.Error.Message)
		metrics.ObserveNetworkRequest("solana", method, "rpc", start, err)
		return err
	}
	metrics.ObserveNetworkRequest("solana", method, "rpc", start, nil)
	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("solana: decode result: %w", err)
		}
	}
	return nil
}

// Balance возвращает баланс кошелька в SOL.
func (w *Wallet) Balance(ctx context.Context) (domain.WalletBalance, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := w.rpcCall(ctx, "getBalance", []any{w.pubkey}, &result); err != nil {
		return domain.WalletBalance{}, err
	}
	return domain.WalletBalance{SOL: float64(result.Value) / lamportsPerSOL}, nil
}

type swapQuoteResponse = json.RawMessage

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuyAndBurn свопает amountSOL в собственный токен с зачислением на
// инсинератор и возвращает подпись транзакции.
func (w *Wallet) BuyAndBurn(ctx context.Context, amountSOL float64) (string, error) {
	lamports := uint64(amountSOL * lamportsPerSOL)
	quoteURL := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=300",
		w.swapBase, solMint, w.tokenMint, lamports)

	quote, err := w.getQuote(ctx, quoteURL)
	if err != nil {
		return "", err
	}

	swapBody, err := json.Marshal(map[string]any{
		"quoteResponse":           quote,
		"userPublicKey":           w.pubkey,
		"wrapAndUnwrapSol":        true,
		"destinationTokenAccount": incinerator,
	})
	if err != nil {
		return "", fmt.Errorf("solana: marshal swap request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.swapBase+"/swap", bytes.NewReader(swapBody))
	if err != nil {
		return "", fmt.Errorf("solana: build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := w.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("jupiter", "swap", w.tokenMint, start, err)
		return "", fmt.Errorf("solana: swap request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("jupiter", "swap", w.tokenMint, start, err)
		return "", fmt.Errorf("solana: read swap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("solana: swap status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("jupiter", "swap", w.tokenMint, start, err)
		return "", err
	}
	var swap swapResponse
	if err := json.Unmarshal(respBody, &swap); err != nil {
		metrics.ObserveNetworkRequest("jupiter", "swap", w.tokenMint, start, err)
		return "", fmt.Errorf("solana: decode swap response: %w", err)
	}
	metrics.ObserveNetworkRequest("jupiter", "swap", w.tokenMint, start, nil)

	signed, err := w.signTransaction(swap.SwapTransaction)
	if err != nil {
		return "", err
	}

	var signature string
	if err := w.rpcCall(ctx, "sendTransaction", []any{signed, map[string]any{"encoding": "base64"}}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

func (w *Wallet) getQuote(ctx context.Context, quoteURL string) (swapQuoteResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("solana: build quote request: %w", err)
	}
	start := time.Now()
	resp, err := w.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("jupiter", "quote", w.tokenMint, start, err)
		return nil, fmt.Errorf("solana: quote request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("jupiter", "quote", w.tokenMint, start, err)
		return nil, fmt.Errorf("solana: read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("solana: quote status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("jupiter", "quote", w.tokenMint, start, err)
		return nil, err
	}
	metrics.ObserveNetworkRequest("jupiter", "quote", w.tokenMint, start, nil)
	return swapQuoteResponse(body), nil
}

// signTransaction подписывает сериализованную агрегатором транзакцию.
// Ровно одна требуемая подпись: сообщение начинается после массива подписей.
func (w *Wallet) signTransaction(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("solana: decode transaction: %w", err)
	}
	if len(raw) < 1+ed25519.SignatureSize {
		return "", fmt.Errorf("solana: транзакция короче одной подписи")
	}
	numSigs := int(raw[0])
	if numSigs != 1 {
		return "", fmt.Errorf("solana: ожидалась одна подпись, в транзакции %d", numSigs)
	}
	message := raw[1+ed25519.SignatureSize:]
	sig := ed25519.Sign(w.key, message)
	copy(raw[1:1+ed25519.SignatureSize], sig)
	return base64.StdEncoding.EncodeToString(raw), nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Decode(s string) ([]byte, error) {
	value := new(big.Int)
	radix := big.NewInt(58)
	for _, r := range s {
		idx := bytes.IndexRune([]byte(base58Alphabet), r)
		if idx < 0 {
			return nil, fmt.Errorf("недопустимый символ %q", r)
		}
		value.Mul(value, radix)
		value.Add(value, big.NewInt(int64(idx)))
	}
	decoded := value.Bytes()
	// Ведущие '1' кодируют нулевые байты.
	for i := 0; i < len(s) && s[i] == '1'; i++ {
		decoded = append([]byte{0}, decoded...)
	}
	return decoded, nil
}

func base58Encode(b []byte) string {
	value := new(big.Int).SetBytes(b)
	radix := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for value.Sign() > 0 {
		value.DivMod(value, radix, mod)
		out = append([]byte{base58Alphabet[mod.Int64()]}, out...)
	}
	for i := 0; i < len(b) && b[i] == 0; i++ {
		out = append([]byte{'1'}, out...)
	}
	return string(out)
}
