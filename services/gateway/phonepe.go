// Package gatewaysvc implements payment.Gateway against the PhonePe pay-page API.
package gatewaysvc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status/"

	codeSuccess = "PAYMENT_SUCCESS"
	codePending = "PAYMENT_PENDING"
)

type (
	PhonePe struct {
		conf   core.GatewayConfig
		creds  payment.CredentialSource
		client *rest.Client
		logger core.Logger
	}

	payRequest struct {
		MerchantID            string            `json:"merchantId"`
		MerchantTransactionID string            `json:"merchantTransactionId"`
		MerchantUserID        string            `json:"merchantUserId"`
		Amount                int64             `json:"amount"`
		RedirectURL           string            `json:"redirectUrl"`
		RedirectMode          string            `json:"redirectMode"`
		CallbackURL           string            `json:"callbackUrl"`
		PaymentInstrument     map[string]string `json:"paymentInstrument"`
	}

	credentialLister interface {
		QueryCredentials(ctx context.Context) ([]payment.Credential, error)
	}

	// apiResponse is the envelope of every PhonePe answer, callbacks included.
	apiResponse struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			MerchantTransactionID string `json:"merchantTransactionId"`
			TransactionID         string `json:"transactionId"`
			State                 string `json:"state"`
			InstrumentResponse    struct {
				RedirectInfo struct {
					URL string `json:"url"`
				} `json:"redirectInfo"`
			} `json:"instrumentResponse"`
		} `json:"data"`
	}
)

var _ payment.Gateway = (*PhonePe)(nil)

// NewPhonePe builds the gateway client. Credentials come from `creds` when one is active,
// else from the static configuration.
func NewPhonePe(conf core.GatewayConfig, creds payment.CredentialSource, httpClient *http.Client, logger core.Logger) *PhonePe {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: conf.Timeout}
	}
	return &PhonePe{
		conf:   conf,
		creds:  creds,
		client: &rest.Client{HTTPClient: httpClient},
		logger: logger,
	}
}

func (pp *PhonePe) Name() string {
	if pp.conf.Name != "" {
		return pp.conf.Name
	}
	return "phonepe"
}

func (pp *PhonePe) credential(ctx context.Context) (payment.Credential, error) {
	if pp.creds != nil {
		cred, err := pp.creds.ActiveCredential(ctx)
		if err == nil {
			return cred, nil
		}
		if !core.IsNotFound(err) {
			return payment.Credential{}, errors.Wrap(err, "loading gateway credential")
		}
	}
	if pp.conf.MerchantID == "" || pp.conf.SaltKey == "" {
		return payment.Credential{}, errors.New("no gateway credential configured")
	}
	return payment.Credential{
		MerchantID: pp.conf.MerchantID,
		SaltKey:    pp.conf.SaltKey,
		SaltIndex:  pp.conf.SaltIndex,
		BaseURL:    pp.conf.BaseURL,
	}, nil
}

// sign returns the X-VERIFY header value of a signed payload.
func sign(payload string, cred payment.Credential) string {
	sum := sha256.Sum256([]byte(payload + cred.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + strconv.Itoa(cred.SaltIndex)
}

func (pp *PhonePe) CreateOrder(ctx context.Context, order payment.GatewayOrder) (string, error) {
	cred, err := pp.credential(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payRequest{
		MerchantID:            cred.MerchantID,
		MerchantTransactionID: order.TransactionID,
		MerchantUserID:        order.UserID,
		Amount:                order.AmountMinor,
		RedirectURL:           pp.conf.RedirectURL + "?txnId=" + order.TransactionID,
		RedirectMode:          "REDIRECT",
		CallbackURL:           pp.conf.CallbackURL,
		PaymentInstrument:     map[string]string{"type": "PAY_PAGE"},
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding pay request")
	}
	encoded := base64.StdEncoding.EncodeToString(body)
	reqBody, _ := json.Marshal(map[string]string{"request": encoded})

	resp, err := pp.send(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: strings.TrimRight(cred.BaseURL, "/") + payPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"X-VERIFY":     sign(encoded+payPath, cred),
		},
		Body: reqBody,
	})
	if err != nil {
		return "", err
	}

	url := resp.Data.InstrumentResponse.RedirectInfo.URL
	if url == "" {
		return "", &payment.RejectedError{Code: resp.Code, Message: "no redirect url in gateway answer"}
	}
	return url, nil
}

func (pp *PhonePe) VerifyCallback(ctx context.Context, payload payment.CallbackPayload) (payment.Outcome, error) {
	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(payload.Body, &envelope); err != nil || envelope.Response == "" {
		return payment.Outcome{}, errors.Wrap(payment.ErrInvalidCallback, "missing response field")
	}

	if err := pp.verifySignature(ctx, envelope.Response, payload.Signature); err != nil {
		return payment.Outcome{}, err
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Response)
	if err != nil {
		return payment.Outcome{}, errors.Wrap(payment.ErrInvalidCallback, "decoding response")
	}
	var resp apiResponse
	if err = json.Unmarshal(decoded, &resp); err != nil {
		return payment.Outcome{}, errors.Wrap(payment.ErrInvalidCallback, "decoding response")
	}
	if resp.Data.MerchantTransactionID == "" {
		return payment.Outcome{}, errors.Wrap(payment.ErrInvalidCallback, "missing transaction id")
	}
	return outcome(resp.Data.MerchantTransactionID, resp), nil
}

// verifySignature accepts a callback signed with the active credential or with any earlier
// version, since orders opened before a rotation are still called back with the old salt.
func (pp *PhonePe) verifySignature(ctx context.Context, response, signature string) error {
	active, err := pp.credential(ctx)
	if err != nil {
		return err
	}
	if signedWith(response, signature, active) {
		return nil
	}

	lister, ok := pp.creds.(credentialLister)
	if !ok {
		return errors.Wrap(payment.ErrInvalidCallback, "signature mismatch")
	}
	creds, err := lister.QueryCredentials(ctx)
	if err != nil {
		return errors.Wrap(err, "loading gateway credentials")
	}
	if pp.conf.SaltKey != "" {
		creds = append(creds, payment.Credential{SaltKey: pp.conf.SaltKey, SaltIndex: pp.conf.SaltIndex})
	}
	for _, cred := range creds {
		if signedWith(response, signature, cred) {
			pp.logger.Info("callback signed with an inactive credential", map[string]interface{}{
				"credential_id": cred.ID, "version": cred.Version,
			})
			return nil
		}
	}
	return errors.Wrap(payment.ErrInvalidCallback, "signature mismatch")
}

func signedWith(payload, signature string, cred payment.Credential) bool {
	return subtle.ConstantTimeCompare([]byte(sign(payload, cred)), []byte(signature)) == 1
}

func (pp *PhonePe) CheckStatus(ctx context.Context, txnID string) (payment.Outcome, error) {
	cred, err := pp.credential(ctx)
	if err != nil {
		return payment.Outcome{}, err
	}

	path := statusPath + cred.MerchantID + "/" + txnID
	resp, err := pp.send(ctx, rest.Request{
		Method:  rest.Get,
		BaseURL: strings.TrimRight(cred.BaseURL, "/") + path,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"X-VERIFY":      sign(path, cred),
			"X-MERCHANT-ID": cred.MerchantID,
		},
	})
	if err != nil {
		return payment.Outcome{}, err
	}
	return outcome(txnID, resp), nil
}

// send performs the request. Answers with success=false are rejections; 5xx answers are errors.
func (pp *PhonePe) send(ctx context.Context, req rest.Request) (apiResponse, error) {
	httpResp, err := pp.client.SendWithContext(ctx, req)
	if err != nil {
		return apiResponse{}, errors.Wrap(err, "calling gateway")
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return apiResponse{}, errors.Errorf("gateway answered %d", httpResp.StatusCode)
	}

	var resp apiResponse
	if err = json.Unmarshal([]byte(httpResp.Body), &resp); err != nil {
		return apiResponse{}, errors.Wrapf(err, "decoding gateway answer (status %d)", httpResp.StatusCode)
	}
	// the status API reports failed payments with success=false and a payment code
	if !resp.Success && !strings.HasPrefix(resp.Code, "PAYMENT_") {
		pp.logger.Warn("gateway rejected request", map[string]interface{}{
			"code": resp.Code, "message": resp.Message, "status": httpResp.StatusCode,
		})
		return apiResponse{}, &payment.RejectedError{Code: resp.Code, Message: resp.Message}
	}
	return resp, nil
}

func outcome(txnID string, resp apiResponse) payment.Outcome {
	out := payment.Outcome{TransactionID: txnID, Code: resp.Code, GatewayRef: resp.Data.TransactionID}
	switch resp.Code {
	case codeSuccess:
		out.Status = payment.OutcomeSuccess
	case codePending:
		out.Status = payment.OutcomePending
	default:
		// only payment codes are final; server errors leave the payment to the status check
		if strings.HasPrefix(resp.Code, "PAYMENT_") {
			out.Status = payment.OutcomeFailed
		} else {
			out.Status = payment.OutcomePending
		}
	}
	return out
}
