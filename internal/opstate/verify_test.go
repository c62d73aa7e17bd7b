package opstate

import (
	"testing"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/keymodel"
	"github.com/gpgclient/gpgclient/internal/statusproto"
	"github.com/stretchr/testify/require"
)

func TestDeriveSummaryCrossProduct(t *testing.T) {
	statuses := []SigStatus{
		SigStatusOK, SigStatusBadSignature, SigStatusSigExpired,
		SigStatusKeyExpired, SigStatusNoPublicKey, SigStatusNoData, SigStatusGeneral,
	}
	validities := []keymodel.Validity{
		keymodel.ValidityUnknown, keymodel.ValidityUndefined, keymodel.ValidityNever,
		keymodel.ValidityMarginal, keymodel.ValidityFull, keymodel.ValidityUltimate,
	}
	reasons := []gpgerr.Kind{gpgerr.KindNone, gpgerr.KindCRLTooOld, gpgerr.KindCertRevoked}

	for _, st := range statuses {
		for _, val := range validities {
			for _, reason := range reasons {
				for _, wrongUsage := range []bool{false, true} {
					s := DeriveSummary(st, val, reason, wrongUsage)
					okLike := st == SigStatusOK || st == SigStatusSigExpired || st == SigStatusKeyExpired

					wantGreen := (val == keymodel.ValidityFull || val == keymodel.ValidityUltimate) && okLike
					require.Equal(t, wantGreen, s&SummaryGreen != 0, "green: %v %v %v %v", st, val, reason, wrongUsage)

					wantRed := (val == keymodel.ValidityNever && okLike) || st == SigStatusBadSignature
					require.Equal(t, wantRed, s&SummaryRed != 0, "red: %v %v %v %v", st, val, reason, wrongUsage)

					require.Equal(t, st == SigStatusSigExpired, s&SummarySigExpired != 0)
					require.Equal(t, st == SigStatusKeyExpired, s&SummaryKeyExpired != 0)
					require.Equal(t, st == SigStatusNoPublicKey, s&SummaryKeyMissing != 0)
					require.Equal(t, st != SigStatusOK && st != SigStatusBadSignature, s&SummarySysError != 0)
					require.Equal(t, reason == gpgerr.KindCRLTooOld && val == keymodel.ValidityUnknown, s&SummaryCRLTooOld != 0)
					require.Equal(t, reason == gpgerr.KindCertRevoked, s&SummaryKeyRevoked != 0)
					require.Equal(t, wrongUsage, s&SummaryBadPolicy != 0)

					wantValid := (s &^ SummaryValid) == SummaryGreen
					require.Equal(t, wantValid, s&SummaryValid != 0, "valid: %v %v %v %v", st, val, reason, wrongUsage)
				}
			}
		}
	}
}

func statusLine(code statusproto.Code, args ...string) statusproto.Line {
	return statusproto.Line{Code: code, Args: args}
}

func TestVerifyGoodSignature(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeGOODSIG, "FPR123", "Alice")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeVALIDSIG, "FPR123", "unused", "1000", "2000", "4", "0", "1", "2")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeTRUST_ULTIMATE)))

	res, err := v.Finish()
	require.NoError(t, err)
	require.Len(t, res.Signatures, 1)
	sig := res.Signatures[0]
	require.Equal(t, "FPR123", sig.Fingerprint)
	require.Equal(t, SigStatusOK, sig.Status)
	require.Equal(t, keymodel.ValidityUltimate, sig.Validity)
	require.NotZero(t, sig.Summary&SummaryGreen)
}

func TestVerifyTrailingEmptySignatureDiscarded(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	res, err := v.Finish()
	require.NoError(t, err)
	require.Empty(t, res.Signatures)
}

func TestVerifyPlaintextTwiceIsBadData(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodePLAINTEXT, "b", "file1")))
	err := v.Feed(statusLine(statusproto.CodePLAINTEXT, "b", "file2"))
	require.Error(t, err)
	require.Equal(t, gpgerr.KindBadData, gpgerr.Of(err))
}

func TestVerifyErrorPlaintextAborts(t *testing.T) {
	v := NewVerify()
	err := v.Feed(statusLine(statusproto.CodeERROR, "proc_pkt.plaintext", "83918273"))
	require.Error(t, err)
	_, finishErr := v.Finish()
	require.Error(t, finishErr)
}

func TestVerifyNotationDataWithoutNameIsInvalidStatus(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeGOODSIG, "FPR", "Alice")))
	err := v.Feed(statusLine(statusproto.CodeNOTATION_DATA, "hello%20world"))
	require.Error(t, err)
	require.Equal(t, gpgerr.KindInvalidStatus, gpgerr.Of(err))
	_, finishErr := v.Finish()
	require.Error(t, finishErr)
}

func TestVerifyDuplicatePKATrustIsInvalidStatus(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeGOODSIG, "FPR", "Alice")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodePKA_TRUST_GOOD, "alice@example.com")))
	err := v.Feed(statusLine(statusproto.CodePKA_TRUST_BAD, "alice@example.com"))
	require.Error(t, err)
	require.Equal(t, gpgerr.KindInvalidStatus, gpgerr.Of(err))
}

func TestVerifyPKATrustResetsPerSignature(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeGOODSIG, "FPR1", "Alice")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodePKA_TRUST_GOOD, "alice@example.com")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeGOODSIG, "FPR2", "Bob")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodePKA_TRUST_GOOD, "bob@example.com")))

	res, err := v.Finish()
	require.NoError(t, err)
	require.Len(t, res.Signatures, 2)
}

func TestVerifyNotationAccumulates(t *testing.T) {
	v := NewVerify()
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNEWSIG)))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeGOODSIG, "FPR", "Alice")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNOTATION_NAME, "test%40example.com")))
	require.NoError(t, v.Feed(statusLine(statusproto.CodeNOTATION_DATA, "hello%20world")))

	res, err := v.Finish()
	require.NoError(t, err)
	require.Len(t, res.Signatures[0].Notations, 1)
	require.Equal(t, "test@example.com", res.Signatures[0].Notations[0].Name)
	require.Equal(t, "hello world", res.Signatures[0].Notations[0].Value)
}
