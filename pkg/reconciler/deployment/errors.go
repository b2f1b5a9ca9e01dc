/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package deployment

import (
	"errors"
	"fmt"
)

var ErrNoStableSpec = errors.New("no stable spec to roll back to")

// RecoveryFailureError is returned when a job must resume from its previous
// state but the state it has to resume from is gone.
type RecoveryFailureError struct {
	Namespace string
	Name      string
	Reason    string
}

func (e *RecoveryFailureError) Error() string {
	return fmt.Sprintf("cannot recover job of %s/%s: %s", e.Namespace, e.Name, e.Reason)
}

func IsRecoveryFailure(err error) bool {
	var recoveryErr *RecoveryFailureError
	return errors.As(err, &recoveryErr)
}
