package handler

import (
	"errors"
	"strconv"

	"github.com/ogurasousui/site-access/internal/adapters/grpc/wire"
	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/ogurasousui/site-access/internal/core/occupancy"
	"github.com/ogurasousui/site-access/internal/platform/auth"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	var denied *admission.DeniedError
	var storage *admission.StorageError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrInvalidIdentifier),
		errors.Is(err, admission.ErrInvalidEmployeeID),
		errors.Is(err, admission.ErrInvalidGateID),
		errors.Is(err, admission.ErrInvalidType),
		errors.Is(err, occupancy.ErrInvalidVendorID),
		errors.Is(err, ledger.ErrInvalidEmployeeID),
		errors.Is(err, ledger.ErrInvalidScannerID),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, ledger.ErrInvalidStatus),
		errors.Is(err, ledger.ErrInvalidLimit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &denied):
		return withInfo(codes.FailedPrecondition, err.Error(), deniedInfo(denied))
	case errors.Is(err, directory.ErrEmployeeNotFound):
		return withInfo(codes.NotFound, err.Error(), &errdetails.ErrorInfo{Reason: wire.ReasonEmployeeNotFound, Domain: wire.ErrorDomain})
	case errors.Is(err, directory.ErrGateNotFound):
		return withInfo(codes.NotFound, err.Error(), &errdetails.ErrorInfo{Reason: wire.ReasonGateNotFound, Domain: wire.ErrorDomain})
	case errors.Is(err, directory.ErrVendorNotFound):
		return withInfo(codes.NotFound, err.Error(), &errdetails.ErrorInfo{Reason: wire.ReasonVendorNotFound, Domain: wire.ErrorDomain})
	case errors.As(err, &storage):
		return withInfo(codes.Unavailable, err.Error(), &errdetails.ErrorInfo{
			Reason:   wire.ReasonStorage,
			Domain:   wire.ErrorDomain,
			Metadata: map[string]string{wire.MetadataOp: storage.Op},
		})
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func deniedInfo(denied *admission.DeniedError) *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: string(denied.Reason), Domain: wire.ErrorDomain}
	if denied.Reason == admission.ReasonCapacityReached {
		info.Metadata = map[string]string{
			wire.MetadataCap:       strconv.Itoa(denied.Cap),
			wire.MetadataOccupancy: strconv.Itoa(denied.Occupancy),
		}
	}
	return info
}

func withInfo(code codes.Code, msg string, info *errdetails.ErrorInfo) error {
	st, err := status.New(code, msg).WithDetails(info)
	if err != nil {
		return status.Error(code, msg)
	}
	return st.Err()
}
