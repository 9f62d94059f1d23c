/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


/*
Package collector turns raw base-station and user-transaction records into the demand
points consumed by the placement engines.

# Sources

A StationSource yields the candidate locations, a TransactionSource yields user sessions.
Both have CSV implementations that locate columns by header name, so leading index
columns and extra columns are ignored:

	stations:     id,address,latitude,longitude
	transactions: address,user id,start time,end time

# Aggregation

Collect joins transactions to stations on address. For every station:

  - workload is the summed service time of its transactions, in minutes
  - user count is the number of distinct user ids

Stations without transactions keep zero workload and zero users. Transactions whose
address matches no station are dropped and counted in the returned Summary.

# Potential score

ComputePotentialScores sets

	potential = 0.5*norm(userCount) + 0.5*norm(workload)

where norm is min-max normalisation. A constant column is used as is, without
normalisation. FilterByPotential keeps points whose score is at least the threshold.
*/
package collector
